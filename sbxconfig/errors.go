package sbxconfig

import "github.com/scalebox/sbx-go/sbxerr"

var errInvalidDomain = sbxerr.New(sbxerr.KindInvalidArgument, "domain could not be resolved: set SBX_DOMAIN or pass WithDomain")
