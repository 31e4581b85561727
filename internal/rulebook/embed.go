package rulebook

import _ "embed"

// defaultYAML is the rulebook compiled into the binary. RULEBOOK_PATH
// replaces it wholesale.
//
//go:embed default.yaml
var defaultYAML []byte
