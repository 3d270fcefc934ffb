package conf

import (
	"github.com/spf13/viper"
)

// setDefaultConfig sets the default values for the configuration parameters.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	// Main
	viper.SetDefault("main.name", "inatwatch")
	viper.SetDefault("main.log.level", "info")
	viper.SetDefault("main.log.maxsize", 100)
	viper.SetDefault("main.log.maxbackups", 3)
	viper.SetDefault("main.log.maxage", 28)

	// Upstream API
	viper.SetDefault("api.baseurl", "https://api.inaturalist.org/v1/observations")
	viper.SetDefault("api.timeout", 30)
	viper.SetDefault("api.maxattempts", 5)
	viper.SetDefault("api.initialbackoff", 1)
	viper.SetDefault("api.maxbackoff", 64)
	viper.SetDefault("api.useragent", "inatwatch")

	// Location
	viper.SetDefault("location.latitude", 0.0)
	viper.SetDefault("location.longitude", 0.0)
	viper.SetDefault("location.radius", 25.0)
	viper.SetDefault("location.timezone", "UTC")

	// Taxa
	viper.SetDefault("taxa.include", []int64{})
	viper.SetDefault("taxa.exclude", []int64{})
	viper.SetDefault("taxa.watchlist", []int64{})

	// Rarity
	viper.SetDefault("rarity.method", RarityMethodRadius)
	viper.SetDefault("rarity.placeid", 0)

	// Digest workflow
	viper.SetDefault("digest.agethresholddays", 30)
	viper.SetDefault("digest.lookbackdays", 7)
	viper.SetDefault("digest.intervalhours", 24)

	// Alert workflow
	viper.SetDefault("alert.lookbackminutes", 60)
	viper.SetDefault("alert.intervalminutes", 60)

	// State persistence
	viper.SetDefault("state.path", "inatwatch-state.json")
	viper.SetDefault("state.retentiondays", 30)

	// Report delivery
	viper.SetDefault("notify.urls", []string{})
}
