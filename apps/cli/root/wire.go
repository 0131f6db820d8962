package root

import (
	"github.com/rmsphere/control-plane/apps/cli/cmd/bootstrap"
	"github.com/rmsphere/control-plane/apps/cli/cmd/tenant"
)

func init() {
	Root().AddCommand(bootstrap.Command())
	Root().AddCommand(tenant.Command())
}
