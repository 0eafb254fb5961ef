package domain

import "azureorm/internal/schema"

// NewRegistry returns a registry holding every table of this package.
func NewRegistry() (*schema.Registry, error) {
	return schema.NewRegistry(
		TradeVolumeByCountryPair{},
		TradeVolumeByProduct{},
		CountryInfo{},
		NewsSummary{},
	)
}
