package schema

import _ "embed"

//go:embed trunk-libdeps-config.schema.json
var ConfigSchema []byte
