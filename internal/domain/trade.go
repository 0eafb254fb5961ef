package domain

import "azureorm/internal/schema"

var tradeVolumeByCountryPairTable = &schema.Table{
	Name: "BaciSparseTradeVolume",
	Columns: []schema.Column{
		{Name: "Importer", Type: schema.String, Length: 3, PrimaryKey: true},
		{Name: "Exporter", Type: schema.String, Length: 3, PrimaryKey: true},
		{Name: "Year", Type: schema.Int16, PrimaryKey: true},
		{Name: "ValueBillionUSD", Type: schema.Float32, Nullable: true},
	},
}

// TradeVolumeByCountryPair is the yearly trade value between two countries,
// keyed by ISO3 importer and exporter codes.
type TradeVolumeByCountryPair struct {
	Importer        string   `db:"Importer"`
	Exporter        string   `db:"Exporter"`
	Year            int16    `db:"Year"`
	ValueBillionUSD *float32 `db:"ValueBillionUSD"`
}

func (TradeVolumeByCountryPair) Table() *schema.Table { return tradeVolumeByCountryPairTable }

var tradeVolumeByProductTable = &schema.Table{
	Name: "BaciTradeByProduct",
	Columns: []schema.Column{
		{Name: "Importer", Type: schema.String, Length: 3, PrimaryKey: true},
		{Name: "Exporter", Type: schema.String, Length: 3, PrimaryKey: true},
		{Name: "Year", Type: schema.Int16, PrimaryKey: true},
		{Name: "ProductCode", Type: schema.String, Length: 2, PrimaryKey: true},
		{Name: "ValueBillionUSD", Type: schema.Float32, Nullable: true},
		{Name: "Volume", Type: schema.Float32, Nullable: true},
	},
}

// TradeVolumeByProduct breaks a country pair's yearly trade down by
// two-digit product code.
type TradeVolumeByProduct struct {
	Importer        string   `db:"Importer"`
	Exporter        string   `db:"Exporter"`
	Year            int16    `db:"Year"`
	ProductCode     string   `db:"ProductCode"`
	ValueBillionUSD *float32 `db:"ValueBillionUSD"`
	Volume          *float32 `db:"Volume"`
}

// NewTradeVolumeByProduct builds a row from all of its values.
func NewTradeVolumeByProduct(importer, exporter string, year int16, productCode string, value, volume float32) *TradeVolumeByProduct {
	t := &TradeVolumeByProduct{
		Importer:        importer,
		Exporter:        exporter,
		Year:            year,
		ProductCode:     productCode,
		ValueBillionUSD: &value,
		Volume:          &volume,
	}
	schema.Normalize(t)
	return t
}

func (TradeVolumeByProduct) Table() *schema.Table { return tradeVolumeByProductTable }
