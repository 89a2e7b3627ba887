// Package connector provides examples of using the Stratum connector
// framework.
package connector_test

import (
	"context"
	"fmt"
	"log"

	"github.com/ajitpratap0/stratum/pkg/config"
	"github.com/ajitpratap0/stratum/pkg/connector/core"
	"github.com/ajitpratap0/stratum/pkg/connector/memory"
	"github.com/ajitpratap0/stratum/pkg/connector/registry"
	"github.com/ajitpratap0/stratum/pkg/dispatch"
)

// Example demonstrates registering a connector and routing container
// operations through the dispatch layer.
func Example() {
	ctx := context.Background()

	// Register the in-memory connector with the global registry
	inst, err := registry.Register(memory.Class(), nil)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = registry.Unregister(inst) }()

	// An access configuration names the connector handling the container
	acfg := config.NewAccessConfig()
	acfg.Connector = memory.Name
	defer func() { _ = acfg.Free() }()

	file, err := dispatch.FileCreate(ctx, "example-container",
		core.FlagReadWrite|core.FlagTruncate, acfg, nil)
	if err != nil {
		log.Fatal(err)
	}

	ds, err := dispatch.DatasetCreate(ctx, file, core.Self(), "values", nil)
	if err != nil {
		log.Fatal(err)
	}
	if err := dispatch.DatasetWrite(ctx, ds, &core.IOArgs{Buf: []byte{1, 2, 3}}, nil, nil); err != nil {
		log.Fatal(err)
	}

	var size int64
	if err := dispatch.DatasetGet(ctx, ds, &core.OpArgs{Op: "dataset.size", Out: &size}, nil); err != nil {
		log.Fatal(err)
	}
	fmt.Println("connector:", file.Container().ConnectorName())
	fmt.Println("dataset size:", size)

	_ = dispatch.DatasetClose(ctx, ds, nil)
	_ = dispatch.FileClose(ctx, file, nil)

	// Output:
	// connector: mem
	// dataset size: 3
}
