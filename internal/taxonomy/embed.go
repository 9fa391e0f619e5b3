package taxonomy

import "embed"

// taxonomyFS holds the canonical semantic type list that ships with the
// binary. Its version is the version field of taxonomy.yaml.
//
//go:embed taxonomy.yaml
var taxonomyFS embed.FS

const embeddedFile = "taxonomy.yaml"
