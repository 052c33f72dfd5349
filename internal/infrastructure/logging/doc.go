// Package logging provides structured logging for keymux.
//
// It wraps log/slog so every component logs with the same handler and
// default fields (service, version).
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "text"     # text, json
//	  output: "stderr"   # stdout, stderr, file
//	  file: "/var/log/keymux.log"
//
// # Usage
//
//	logger, err := logging.New(cfg.Logging, version)
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//	logger.Component("orchestrator").Info("capturing", "device", path)
//
// Never log key codes at info level or above: they are keystrokes.
package logging
