package guard_test

import (
	"context"
	"fmt"
	"io"
	"log"

	"github.com/mschirtzinger/etlguard/internal/guard"
	"github.com/mschirtzinger/etlguard/internal/lock"
	"github.com/mschirtzinger/etlguard/internal/syncswitch"
)

// This example runs a backfill body with the destination's incremental sync
// paused, then shows the switch restored.
func ExampleGuard_Run() {
	switches := syncswitch.NewMemory()
	g, err := guard.NewWithConfig(lock.NewMemory(), switches, &guard.Config{
		Logger: log.New(io.Discard, "", 0),
	})
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	err = g.Run(ctx, "es7", "example", "mytest_person2.yml", func(ctx context.Context) error {
		on, _ := switches.Status(ctx, "example")
		fmt.Println("sync on during run:", on)
		return nil
	})
	if err != nil {
		log.Fatal(err)
	}

	on, _ := switches.Status(ctx, "example")
	fmt.Println("sync on after run:", on)
	// Output:
	// sync on during run: false
	// sync on after run: true
}

// This example shows a second run of the same destination being turned away
// while the first still holds the lock.
func ExampleIsBusy() {
	g, _ := guard.NewWithConfig(lock.NewMemory(), syncswitch.NewMemory(), &guard.Config{
		Logger: log.New(io.Discard, "", 0),
	})

	ctx := context.Background()
	_ = g.Run(ctx, "rdb", "warehouse", "mytest_user.yml", func(ctx context.Context) error {
		err := g.Run(ctx, "rdb", "warehouse", "mytest_order.yml", func(context.Context) error { return nil })
		fmt.Println(guard.IsBusy(err))
		fmt.Println(err)
		return nil
	})
	// Output:
	// true
	// mytest_order.yml is being imported by another process, try again later
}
