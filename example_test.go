package cachego_test

import (
	"context"
	"fmt"
	"log"

	"github.com/hupe1980/cachego"
	"github.com/hupe1980/cachego/backend"
	"github.com/hupe1980/cachego/policy"
)

type greetingProducer struct {
	who string
}

func (p *greetingProducer) LogicalName() string     { return "Greeting" }
func (p *greetingProducer) VersionString() string   { return "V1" }
func (p *greetingProducer) KeySuffix() string       { return p.who }
func (p *greetingProducer) IsBuildThreadsafe() bool { return true }

func (p *greetingProducer) Build(ctx context.Context) ([]byte, error) {
	return []byte("hello " + p.who), nil
}

// Example demonstrates the synchronous get-or-build path.
func Example() {
	cache := cachego.New(backend.NewMemory())
	defer cache.Close()

	data, ok, wasBuilt := cache.GetSynchronous(context.Background(), &greetingProducer{who: "world"})
	if !ok {
		log.Fatal("get failed")
	}

	fmt.Printf("%s (built=%v)\n", data, wasBuilt)
	// Output: hello world (built=true)
}

// Example_asynchronous demonstrates the handle-based request lifecycle.
func Example_asynchronous() {
	cache := cachego.New(backend.NewMemory())
	defer cache.Close()

	handle := cache.GetAsynchronous(context.Background(), &greetingProducer{who: "later"})
	cache.WaitAsynchronousCompletion(handle)

	data, ok, _ := cache.GetAsynchronousResults(handle)
	fmt.Println(ok, string(data))
	// Output: true hello later
}

// Example_policy demonstrates forcing a rebuild with a read-skipping policy.
func Example_policy() {
	cache := cachego.New(backend.NewMemory())
	defer cache.Close()
	ctx := context.Background()

	producer := &greetingProducer{who: "policy"}
	cache.GetSynchronous(ctx, producer) // warm the cache

	forceBuild := policy.NewBuilder(policy.SkipRead).Build()
	_, _, wasBuilt := cache.GetSynchronousPolicy(ctx, producer, forceBuild)

	fmt.Println(wasBuilt)
	// Output: true
}

// Example_chain demonstrates composing tiers into one backend.
func Example_chain() {
	chain := backend.NewChain(
		backend.NewMemory(),
		backend.NewCompressed(backend.NewMemory(), backend.CompressionLZ4),
	)

	cache := cachego.New(chain)
	defer cache.Close()

	fmt.Println(chain.Name())
	// Output: chain(memory,memory+compress)
}
