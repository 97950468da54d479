// Package genconfig holds the configuration knobs shared by every phase of
// the firmware generation pipeline.
package genconfig

// Config configures a full extract+index+layout+assemble run.
type Config struct {
	Seed                int64
	NumImages           int
	MinSize             int
	MaxSize             int
	MultiISAProbability float64
	ParallelJobs        int
	OracleOutputDir     string
	ObjectsDir          string
	FirmwareDir         string
	Families            []string // empty/nil = all families; else only these are primary ISAs
	MinImagesPerCombo   int
	ForceExtract        bool
	Verbose             bool
}

// Default returns a Config with the reference pipeline's defaults.
func Default() Config {
	return Config{
		Seed:                42,
		NumImages:           1000,
		MinSize:             4096,
		MaxSize:             16 * 1024 * 1024,
		MultiISAProbability: 0.15,
		ParallelJobs:        8,
		OracleOutputDir:     "../output",
		ObjectsDir:          "../objects",
		FirmwareDir:         "../firmware",
		MinImagesPerCombo:   20,
	}
}
