package docker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
)

// Pool keeps PoolSize started containers waiting, each with the workspace
// bind-mounted, so an action does not pay container start-up time.
//
// A container's bind mount pins the workspace directory that existed when it
// was created. After a reset that directory is gone, so a reset must Hold the
// pool before deleting anything and Release it once the new directory is in
// place:
//
//	Hold:    wait out any container being created, stop creating more
//	Release: discard every pooled container, resume creating
//
// Every container is created and queued under mu, so none can straddle a
// reset.
type Pool struct {
	create func() (string, error)
	remove func(id string)
	size   int
	logger *slog.Logger

	containers chan string
	done       chan struct{}
	wg         sync.WaitGroup
	startDone  sync.Once
	stopDone   sync.Once

	mu sync.Mutex
}

// NewPool returns a pool creating containers from cfg through cli.
func NewPool(cli *client.Client, cfg Config, logger *slog.Logger) *Pool {
	f := &factory{cli: cli, config: cfg}
	return newPool(f.create, f.remove, cfg.PoolSize, logger)
}

func newPool(create func() (string, error), remove func(string), size int, logger *slog.Logger) *Pool {
	return &Pool{
		create:     create,
		remove:     remove,
		size:       size,
		logger:     logger,
		containers: make(chan string, size),
		done:       make(chan struct{}),
	}
}

// Start begins filling the pool in the background.
func (p *Pool) Start() {
	p.startDone.Do(func() {
		p.logger.Info("starting docker container pool", slog.Int("poolSize", p.size))
		p.wg.Add(1)
		go p.manager()
	})
}

// Stop shuts down the manager and removes every pooled container.
func (p *Pool) Stop() {
	p.stopDone.Do(func() {
		p.logger.Info("shutting down docker container pool")
		close(p.done)
		p.wg.Wait()
		p.drain()
	})
}

// Hold blocks until no container is being created and keeps it that way
// until Release.
func (p *Pool) Hold() {
	p.mu.Lock()
}

// Release discards every pooled container and lets the pool refill.
// It must follow a Hold.
func (p *Pool) Release() {
	defer p.mu.Unlock()
	if n := p.drain(); n > 0 {
		p.logger.Debug("discarded pooled containers", slog.Int("count", n))
	}
}

// GetContainer returns a ready container ID from the pool.
// It blocks until one is available or the context is canceled.
func (p *Pool) GetContainer(ctx context.Context) (string, error) {
	select {
	case id := <-p.containers:
		return id, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (p *Pool) drain() int {
	n := 0
	for {
		select {
		case id := <-p.containers:
			p.remove(id)
			n++
		default:
			return n
		}
	}
}

// manager keeps the pool at capacity until Stop.
func (p *Pool) manager() {
	defer p.wg.Done()

	for {
		select {
		case <-p.done:
			return
		default:
		}

		if len(p.containers) >= cap(p.containers) {
			time.Sleep(100 * time.Millisecond)
			continue
		}
		if err := p.fill(); err != nil {
			p.logger.Error("failed to create pre-warmed container", slog.String("error", err.Error()))
			time.Sleep(1 * time.Second)
		}
	}
}

// fill creates one container and queues it.
func (p *Pool) fill() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	id, err := p.create()
	if err != nil {
		return err
	}

	// Never block while holding mu.
	select {
	case p.containers <- id:
	default:
		p.remove(id)
	}
	return nil
}

// factory creates and removes pool containers on the Docker daemon.
type factory struct {
	cli    *client.Client
	config Config
}

// create starts a container running `sleep infinity` with the workspace
// mounted read-write at MountPath and everything else read-only.
func (f *factory) create() (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	hostConfig := &container.HostConfig{
		NetworkMode: "none",
		Binds:       []string{f.config.WorkspaceDir + ":" + f.config.MountPath},
		Resources: container.Resources{
			Memory:   f.config.MemoryLimit,
			NanoCPUs: int64(f.config.CPULimit * 1e9),
		},
		ReadonlyRootfs: true,
		// Compilers and node want a scratch /tmp even with a read-only root.
		Tmpfs: map[string]string{"/tmp": "rw,size=64m"},
	}

	resp, err := f.cli.ContainerCreate(ctx, &container.Config{
		Image:      f.config.Image,
		Cmd:        []string{"sleep", "infinity"},
		WorkingDir: f.config.MountPath,
		User:       f.config.User,
	}, hostConfig, nil, nil, "")
	if err != nil {
		return "", fmt.Errorf("creating container: %w", err)
	}

	if err := f.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		f.remove(resp.ID)
		return "", fmt.Errorf("starting container %s: %w", resp.ID, err)
	}
	return resp.ID, nil
}

// remove force-removes a container, ignoring errors.
func (f *factory) remove(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_ = f.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true})
}
