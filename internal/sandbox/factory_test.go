package sandbox

import (
	"context"
	"errors"
	"testing"
)

type stubProvider struct {
	name   string
	closed bool
}

func (p *stubProvider) Name() string { return p.name }

func (p *stubProvider) Create(ctx context.Context, spec *Spec) (Sandbox, error) {
	return nil, errors.New("not implemented")
}

func (p *stubProvider) Validate(ctx context.Context) error { return nil }

func (p *stubProvider) Close() error {
	p.closed = true
	return nil
}

func TestRegistryGetCachesProvider(t *testing.T) {
	r := NewRegistry()

	built := 0
	r.Register("stub", func(config any) (Provider, error) {
		built++
		return &stubProvider{name: "stub"}, nil
	})

	first, err := r.Get("stub", nil)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	second, err := r.Get("stub", nil)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	if first != second {
		t.Error("Get() should return the cached provider")
	}
	if built != 1 {
		t.Errorf("constructor ran %d times, want 1", built)
	}
}

func TestRegistryGetUnknownProvider(t *testing.T) {
	r := NewRegistry()

	if _, err := r.Get("nope", nil); err == nil {
		t.Error("Get() of unregistered provider should fail")
	}
}

func TestRegistryConstructorError(t *testing.T) {
	r := NewRegistry()

	want := errors.New("daemon unreachable")
	r.Register("broken", func(config any) (Provider, error) {
		return nil, want
	})

	if _, err := r.Get("broken", nil); !errors.Is(err, want) {
		t.Errorf("Get() error = %v, want wrapped %v", err, want)
	}
}

func TestRegistryAvailableSorted(t *testing.T) {
	r := NewRegistry()
	r.Register("local", func(any) (Provider, error) { return nil, nil })
	r.Register("docker", func(any) (Provider, error) { return nil, nil })
	r.Register("firecracker", func(any) (Provider, error) { return nil, nil })

	got := r.Available()
	want := []string{"docker", "firecracker", "local"}
	if len(got) != len(want) {
		t.Fatalf("Available() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Available() = %v, want %v", got, want)
		}
	}

	if !r.IsRegistered("docker") {
		t.Error("IsRegistered(docker) = false")
	}
	if r.IsRegistered("vercel") {
		t.Error("IsRegistered(vercel) = true")
	}
}

func TestRegistryCloseDropsCache(t *testing.T) {
	r := NewRegistry()

	var instances []*stubProvider
	r.Register("stub", func(config any) (Provider, error) {
		p := &stubProvider{name: "stub"}
		instances = append(instances, p)
		return p, nil
	})

	if _, err := r.Get("stub", nil); err != nil {
		t.Fatal(err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !instances[0].closed {
		t.Error("cached provider should be closed")
	}

	// Constructor stays registered; Get rebuilds.
	if _, err := r.Get("stub", nil); err != nil {
		t.Fatalf("Get() after Close() error = %v", err)
	}
	if len(instances) != 2 {
		t.Errorf("constructor ran %d times, want 2", len(instances))
	}
}
