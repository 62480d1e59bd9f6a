package settings

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Load reads a TOML settings file on top of Default, so a file only needs the keys it changes.
// A missing file is not an error and yields the defaults.
//
// Parameters:
//   - path: the settings file path
//
// Returns:
//   - Settings: the merged settings
//   - error: a read, decode or validation error
func Load(path string) (Settings, error) {
	s := Default()
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return s, fmt.Errorf("read settings %s: %w", path, err)
	}
	if err := Decode(data, &s); err != nil {
		return Default(), fmt.Errorf("decode settings %s: %w", path, err)
	}
	return s, s.Validate()
}

// Decode unmarshals TOML data into s, leaving keys that are absent from data untouched.
//
// Parameters:
//   - data: the TOML document
//   - s: the settings to decode into
//
// Returns:
//   - error: a decode error, including unknown mode names
func Decode(data []byte, s *Settings) error {
	return toml.Unmarshal(data, s)
}

// Save writes s as TOML to path.
//
// Parameters:
//   - path: the destination file path
//   - s: the settings to write
//
// Returns:
//   - error: an encode or write error
func Save(path string, s Settings) error {
	data, err := toml.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write settings %s: %w", path, err)
	}
	return nil
}
