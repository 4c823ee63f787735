/*
Package config loads kpiflow settings from YAML or JSON.

# File Format

	addr: ":8080"
	store:
	  driver: sqlite       # memory | sqlite | gorm
	  path: kpiflow.db
	retention:
	  max_age: 720h        # 0 keeps results forever
	  interval: 1h
	log:
	  level: info
	  format: json
	expr:
	  placeholder: ATTR
	  max_length: 4096
	telemetry:
	  enabled: true

# Usage

	settings, err := config.Load("kpiflow.yaml")
	if err != nil {
	    log.Fatal(err)
	}

Missing keys take their value from Defaults. Values of the wrong type are
ignored the same way, so a typo never turns into a zero value.

The lower-level Config type wraps the decoded map and offers typed accessors
with defaults, plus Section for nested mappings.
*/
package config
