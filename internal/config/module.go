package config

// TwinConfig describes the photovoltaic module used by the power estimator.
// Defaults are the datasheet values of the installed panel.
type TwinConfig struct {
	Enabled bool `yaml:"enabled" env:"TWIN_ENABLED" env-default:"false"`

	Voc0 float64 `yaml:"voc0" env-default:"22.06"`
	Isc0 float64 `yaml:"isc0" env-default:"0.70"`
	Vmp0 float64 `yaml:"vmp0" env-default:"18.81"`
	Imp0 float64 `yaml:"imp0" env-default:"0.63"`

	// Temperature coefficients as fractions per kelvin.
	AlphaV float64 `yaml:"alpha_v" env-default:"-0.0031"`
	AlphaI float64 `yaml:"alpha_i" env-default:"0.0006"`

	CellsInSeries int `yaml:"cells_in_series" env-default:"36"`
}
