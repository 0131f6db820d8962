package sqlassets

import _ "embed"

//go:embed schema/controlplane/tenants.sql
var TenantsSQL string

//go:embed schema/controlplane/platforms.sql
var PlatformsSQL string

//go:embed schema/baseline/baseline.sql
var BaselineSQL string

//go:embed schema/declarative/full.sql
var FullSchemaSQL string

//go:embed schema/demo/seed.sql
var DemoSeedSQL string
