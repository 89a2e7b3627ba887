// Package stratum provides a pluggable storage connector dispatch layer.
//
// Stratum routes container, group, dataset, attribute, link, object, blob
// and async-request operations from callers to interchangeable storage
// connectors. A connector publishes a descriptor of callback tables; the
// dispatch layer resolves the connector owning each object, binds an
// execution context, and invokes the matching callback. Callers never talk
// to a connector directly.
//
// # Quick Start
//
// Open a container and read a dataset through the default connector:
//
//	import (
//	    "context"
//	    "github.com/ajitpratap0/stratum/pkg/config"
//	    "github.com/ajitpratap0/stratum/pkg/connector/core"
//	    "github.com/ajitpratap0/stratum/pkg/dispatch"
//
//	    _ "github.com/ajitpratap0/stratum/pkg/connector/native"
//	)
//
//	ctx := context.Background()
//	acfg := config.NewAccessConfig()
//
//	file, err := dispatch.FileOpen(ctx, "results.strm", core.FlagReadOnly, acfg, nil)
//	if err != nil { ... }
//	defer dispatch.FileClose(ctx, file, nil)
//
//	ds, err := dispatch.DatasetOpen(ctx, file, core.ByName("data"), "values", nil)
//	if err != nil { ... }
//	err = dispatch.DatasetRead(ctx, ds, &core.IOArgs{Buf: buf}, nil, nil)
//
// When the configured connector is the default and the open fails, the
// dispatch layer probes every registered connector provider for one that
// can access the named resource and retries through the first match.
//
// # Key Packages
//
//	pkg/dispatch     - Operation routing, containers, object handles
//	pkg/connector    - Connector descriptor model, registry, implementations
//	pkg/plugin       - Init-time connector provider registration
//	pkg/config       - Access and transfer configuration
//	pkg/callctx      - Per-call execution context stack
//	pkg/errors       - Error taxonomy and the dispatch error stack
package stratum
