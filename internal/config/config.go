package config

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/spatial-prep/internal/fips"
)

// ErrInvalidConfig marks a configuration that fails validation.
var ErrInvalidConfig = eris.New("config: invalid configuration")

// EnvConfigPath names the environment variable that may point at the config file.
const EnvConfigPath = "CONFIG_PATH"

// Config holds the full application configuration.
type Config struct {
	Name         string             `yaml:"name" mapstructure:"name"`
	SpatialSetup SpatialSetupConfig `yaml:"spatial_setup" mapstructure:"spatial_setup"`
	Importation  ImportationConfig  `yaml:"importation" mapstructure:"importation"`
	Commute      CommuteConfig      `yaml:"commute" mapstructure:"commute"`
	Mobility     MobilityConfig     `yaml:"mobility" mapstructure:"mobility"`
	Boundary     BoundaryConfig     `yaml:"boundary" mapstructure:"boundary"`
	Census       CensusConfig       `yaml:"census" mapstructure:"census"`
	Cache        CacheConfig        `yaml:"cache" mapstructure:"cache"`
	Fetch        FetchConfig        `yaml:"fetch" mapstructure:"fetch"`
	PostGIS      PostGISConfig      `yaml:"postgis" mapstructure:"postgis"`
	Log          LogConfig          `yaml:"log" mapstructure:"log"`
}

// SpatialSetupConfig describes what is modeled and where artifacts go.
type SpatialSetupConfig struct {
	CensusYear    int      `yaml:"census_year" mapstructure:"census_year"`
	ModeledStates []string `yaml:"modeled_states" mapstructure:"modeled_states"`
	BasePath      string   `yaml:"base_path" mapstructure:"base_path"`
	Geodata       string   `yaml:"geodata" mapstructure:"geodata"`
	Mobility      string   `yaml:"mobility" mapstructure:"mobility"`
	Shapefile     string   `yaml:"shapefile" mapstructure:"shapefile"`
}

// ImportationConfig holds external data inputs.
type ImportationConfig struct {
	CensusAPIKey string `yaml:"census_api_key" mapstructure:"census_api_key"`
	CommuteData  string `yaml:"commute_data" mapstructure:"commute_data"`
}

// CommuteConfig names the columns of the commuting flow table.
type CommuteConfig struct {
	OriginColumn      string `yaml:"origin_column" mapstructure:"origin_column"`
	DestinationColumn string `yaml:"destination_column" mapstructure:"destination_column"`
	FlowColumn        string `yaml:"flow_column" mapstructure:"flow_column"`
	Sheet             string `yaml:"sheet" mapstructure:"sheet"`
}

// MobilityConfig configures matrix construction.
type MobilityConfig struct {
	AlignToGeodata bool `yaml:"align_to_geodata" mapstructure:"align_to_geodata"`
}

// BoundaryConfig configures boundary vintages and archive locations.
type BoundaryConfig struct {
	EpochYear  int    `yaml:"epoch_year" mapstructure:"epoch_year"`
	MaxYear    int    `yaml:"max_year" mapstructure:"max_year"`
	LegacyURL  string `yaml:"legacy_url" mapstructure:"legacy_url"`
	CurrentURL string `yaml:"current_url" mapstructure:"current_url"`
}

// CensusConfig configures the population API.
type CensusConfig struct {
	BaseURL  string `yaml:"base_url" mapstructure:"base_url"`
	Dataset  string `yaml:"dataset" mapstructure:"dataset"`
	Variable string `yaml:"variable" mapstructure:"variable"`
}

// CacheConfig configures the persistent fetch cache.
type CacheConfig struct {
	Dir      string `yaml:"dir" mapstructure:"dir"`
	TTLHours int    `yaml:"ttl_hours" mapstructure:"ttl_hours"`
}

// TTL returns the cache entry lifetime; zero means entries never expire.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLHours) * time.Hour
}

// FetchConfig configures network transports.
type FetchConfig struct {
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	UserAgent   string `yaml:"user_agent" mapstructure:"user_agent"`
	MaxAttempts int    `yaml:"max_attempts" mapstructure:"max_attempts"`
}

// Timeout returns the per-request timeout.
func (c FetchConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// PostGISConfig configures the optional database export.
type PostGISConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Schema      string `yaml:"schema" mapstructure:"schema"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment. path selects the
// config file; when empty, CONFIG_PATH is consulted, then ./config.yaml.
// Only an explicitly named file must exist.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	// Environment
	v.SetEnvPrefix("SPATIAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("name", "")
	v.SetDefault("spatial_setup.census_year", 0)
	v.SetDefault("spatial_setup.modeled_states", []string{})
	v.SetDefault("spatial_setup.base_path", "data")
	v.SetDefault("spatial_setup.geodata", "geodata.csv")
	v.SetDefault("spatial_setup.mobility", "mobility.txt")
	v.SetDefault("spatial_setup.shapefile", "counties.shp")
	v.SetDefault("importation.census_api_key", "")
	v.SetDefault("importation.commute_data", "commute_data.csv")
	v.SetDefault("commute.origin_column", "OFIPS")
	v.SetDefault("commute.destination_column", "DFIPS")
	v.SetDefault("commute.flow_column", "FLOW")
	v.SetDefault("commute.sheet", "")
	v.SetDefault("mobility.align_to_geodata", true)
	v.SetDefault("boundary.epoch_year", 2010)
	v.SetDefault("boundary.max_year", 2018)
	v.SetDefault("boundary.legacy_url", "https://www2.census.gov/geo/tiger/TIGER2010/COUNTY/2010/tl_2010_{fips}_county10.zip")
	v.SetDefault("boundary.current_url", "https://www2.census.gov/geo/tiger/TIGER{year}/COUNTY/tl_{year}_us_county.zip")
	v.SetDefault("census.base_url", "https://api.census.gov/data")
	v.SetDefault("census.dataset", "acs/acs5")
	v.SetDefault("census.variable", "B01003_001E")
	v.SetDefault("cache.dir", ".cache")
	v.SetDefault("cache.ttl_hours", 0)
	v.SetDefault("fetch.timeout_secs", 600)
	v.SetDefault("fetch.user_agent", "spatial-prep/1.0")
	v.SetDefault("fetch.max_attempts", 1)
	v.SetDefault("postgis.database_url", "")
	v.SetDefault("postgis.schema", "spatial")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional unless named)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	for i, s := range cfg.SpatialSetup.ModeledStates {
		cfg.SpatialSetup.ModeledStates[i] = strings.ToUpper(strings.TrimSpace(s))
	}

	return &cfg, nil
}

// Validate checks the fields every run needs. It performs no I/O.
func (c *Config) Validate() error {
	var problems []string
	s := c.SpatialSetup

	if s.CensusYear <= 0 {
		problems = append(problems, "spatial_setup.census_year is required")
	}
	if len(s.ModeledStates) == 0 {
		problems = append(problems, "spatial_setup.modeled_states is empty")
	}
	if _, err := fips.Resolve(s.ModeledStates); err != nil && len(s.ModeledStates) > 0 {
		problems = append(problems, err.Error())
	}
	if s.BasePath == "" {
		problems = append(problems, "spatial_setup.base_path is required")
	}
	for key, name := range map[string]string{
		"spatial_setup.geodata":   s.Geodata,
		"spatial_setup.mobility":  s.Mobility,
		"spatial_setup.shapefile": s.Shapefile,
	} {
		if strings.TrimSpace(name) == "" {
			problems = append(problems, key+" is required")
		}
	}
	switch strings.ToLower(filepath.Ext(s.Shapefile)) {
	case ".shp", ".geojson", ".json":
	default:
		problems = append(problems, "spatial_setup.shapefile must end in .shp, .geojson or .json")
	}
	if dup := c.overlappingOutputs(); dup != "" {
		problems = append(problems, "spatial_setup output files overlap at "+dup)
	}
	if c.Boundary.EpochYear > c.Boundary.MaxYear {
		problems = append(problems, "boundary.epoch_year is after boundary.max_year")
	}
	if c.Fetch.TimeoutSecs < 0 {
		problems = append(problems, "fetch.timeout_secs is negative")
	}
	if c.Fetch.MaxAttempts < 1 {
		problems = append(problems, "fetch.max_attempts must be at least 1")
	}
	if c.Cache.TTLHours < 0 {
		problems = append(problems, "cache.ttl_hours is negative")
	}

	if len(problems) > 0 {
		sort.Strings(problems)
		return eris.Wrap(ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// overlappingOutputs returns the first file written by more than one output,
// counting every part of a .shp output and the run manifest.
func (c *Config) overlappingOutputs() string {
	files := []string{c.GeodataPath(), c.MobilityPath(), c.ManifestPath()}
	shapefile := c.ShapefilePath()
	if ext := filepath.Ext(shapefile); strings.EqualFold(ext, ".shp") {
		stem := strings.TrimSuffix(shapefile, ext)
		files = append(files, stem+".shp", stem+".shx", stem+".dbf", stem+".prj")
	} else {
		files = append(files, shapefile)
	}

	seen := make(map[string]bool, len(files))
	for _, f := range files {
		key := strings.ToLower(filepath.Clean(f))
		if seen[key] {
			return f
		}
		seen[key] = true
	}
	return ""
}

// Jurisdictions resolves the modeled short codes.
func (c *Config) Jurisdictions() ([]fips.Jurisdiction, error) {
	js, err := fips.Resolve(c.SpatialSetup.ModeledStates)
	if err != nil {
		return nil, eris.Wrap(ErrInvalidConfig, err.Error())
	}
	return js, nil
}

// GeodataPath is where the county table is written.
func (c *Config) GeodataPath() string {
	return filepath.Join(c.SpatialSetup.BasePath, c.SpatialSetup.Geodata)
}

// MobilityPath is where the mobility matrix is written.
func (c *Config) MobilityPath() string {
	return filepath.Join(c.SpatialSetup.BasePath, c.SpatialSetup.Mobility)
}

// ShapefilePath is where the boundary file is written.
func (c *Config) ShapefilePath() string {
	return filepath.Join(c.SpatialSetup.BasePath, c.SpatialSetup.Shapefile)
}

// ManifestPath is where the run manifest is kept.
func (c *Config) ManifestPath() string {
	return filepath.Join(c.SpatialSetup.BasePath, "manifest.yaml")
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
