// Package all registers every supported format.
package all

import (
	_ "github.com/steveyegge/locsync/internal/formats/android"
	_ "github.com/steveyegge/locsync/internal/formats/dtd"
	_ "github.com/steveyegge/locsync/internal/formats/ini"
	_ "github.com/steveyegge/locsync/internal/formats/json"
	_ "github.com/steveyegge/locsync/internal/formats/po"
	_ "github.com/steveyegge/locsync/internal/formats/properties"
	_ "github.com/steveyegge/locsync/internal/formats/xliff"
	_ "github.com/steveyegge/locsync/internal/formats/yaml"
)
