// Package config handles loading and validating keymux configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables (KEYMUX_SECTION_KEY)
//   - Validation of required fields
//   - Default value handling
//
// The keymap itself (layers, aliases, profiles) lives in its own file,
// referenced by keymap.file, and is parsed by the keymap package.
//
// Usage:
//
//	cfg, err := config.Load("/etc/keymux/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Devices.RootDir)
package config
