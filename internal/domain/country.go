package domain

import "azureorm/internal/schema"

var countryInfoTable = &schema.Table{
	Name: "CountryInfo",
	Columns: []schema.Column{
		{Name: "CountryISO3", Type: schema.String, Length: 3, PrimaryKey: true},
		{Name: "Year", Type: schema.Int16, PrimaryKey: true},
		{Name: "CountryName", Type: schema.String, Length: 100, Nullable: true},
		{Name: "GdpBillionUSD", Type: schema.Float32, Nullable: true},
		{Name: "Population", Type: schema.Float32, Nullable: true},
	},
}

type CountryInfo struct {
	CountryISO3   string   `db:"CountryISO3"`
	Year          int16    `db:"Year"`
	CountryName   *string  `db:"CountryName"`
	GdpBillionUSD *float32 `db:"GdpBillionUSD"`
	Population    *float32 `db:"Population"`
}

func (CountryInfo) Table() *schema.Table { return countryInfoTable }
