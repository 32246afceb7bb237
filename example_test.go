package bulkq_test

import (
	"context"
	"fmt"
	"strings"

	"github.com/bft-labs/bulkq"
	"github.com/bft-labs/bulkq/pkg/bulk"
)

func Example() {
	cfg := bulkq.DefaultConfig()
	cfg.BatchSize = 3
	cfg.MinBatchSizeForThrottle = 1

	var batches []string
	e, err := bulkq.Start(cfg, bulk.OperationFunc[string](func(ctx context.Context, batch []string) error {
		batches = append(batches, strings.Join(batch, ","))
		return nil
	}))
	if err != nil {
		panic(err)
	}

	for _, s := range []string{"a", "b", "c", "d"} {
		if err := e.Add(context.Background(), s); err != nil {
			panic(err)
		}
	}
	if err := e.Stop(context.Background()); err != nil {
		panic(err)
	}

	total := 0
	for _, b := range batches {
		total += len(strings.Split(b, ","))
	}
	fmt.Println(total)
	// Output: 4
}
