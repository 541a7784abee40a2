// File: internal/imaging/config.go
package imaging

import "fmt"

// Config bounds accepted images and shapes the normalized output.
type Config struct {
	MinDimension int
	MaxDimension int
	MaxBytes     int64
	TargetSize   int
	JPEGQuality  int
}

func DefaultConfig() Config {
	return Config{
		MinDimension: 100,
		MaxDimension: 4096,
		MaxBytes:     10 << 20,
		TargetSize:   512,
		JPEGQuality:  90,
	}
}

func (c Config) Validate() error {
	if c.MinDimension <= 0 {
		return fmt.Errorf("imaging: min dimension must be positive, got %d", c.MinDimension)
	}
	if c.MaxDimension < c.MinDimension {
		return fmt.Errorf("imaging: max dimension %d below min dimension %d", c.MaxDimension, c.MinDimension)
	}
	if c.MaxBytes <= 0 {
		return fmt.Errorf("imaging: max bytes must be positive, got %d", c.MaxBytes)
	}
	if c.TargetSize <= 0 {
		return fmt.Errorf("imaging: target size must be positive, got %d", c.TargetSize)
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		return fmt.Errorf("imaging: jpeg quality must be within 1..100, got %d", c.JPEGQuality)
	}
	return nil
}
