package defra

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
)

const (
	DefaultImage         = "sourcenetwork/defradb:latest"
	DefaultContainerName = "cuentos-defra"
	DefaultPort          = "9181"
	ContainerPort        = "9181/tcp"
	DataDir              = "/data"
	Label                = "cuentos-defra"
)

// ContainerStatus is the observed state of the DefraDB container.
type ContainerStatus string

const (
	StatusRunning  ContainerStatus = "running"
	StatusStopped  ContainerStatus = "stopped"
	StatusNotFound ContainerStatus = "not_found"
	StatusStarting ContainerStatus = "starting"
)

// DockerManager owns the DefraDB container lifecycle.
type DockerManager struct {
	cli           *client.Client
	containerName string
	imageName     string
	dataPath      string
	hostPort      string
	labels        map[string]string
}

// DockerConfig configures the Docker manager. Zero values fall back to
// the package defaults.
type DockerConfig struct {
	ContainerName string
	Image         string
	DataPath      string // host path for persisted data (~/.cuentos/defradb)
	HostPort      string
	Labels        map[string]string
}

// NewDockerManager creates a manager using the ambient Docker environment.
func NewDockerManager(cfg DockerConfig) (*DockerManager, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}

	if cfg.ContainerName == "" {
		cfg.ContainerName = DefaultContainerName
	}
	if cfg.Image == "" {
		cfg.Image = DefaultImage
	}
	if cfg.HostPort == "" {
		cfg.HostPort = DefaultPort
	}

	labels := map[string]string{Label: "true"}
	for k, v := range cfg.Labels {
		labels[k] = v
	}

	return &DockerManager{
		cli:           cli,
		containerName: cfg.ContainerName,
		imageName:     cfg.Image,
		dataPath:      cfg.DataPath,
		hostPort:      cfg.HostPort,
		labels:        labels,
	}, nil
}

// Close releases the Docker client.
func (m *DockerManager) Close() error {
	return m.cli.Close()
}

// URL returns the DefraDB API URL on the host.
func (m *DockerManager) URL() string {
	return fmt.Sprintf("http://localhost:%s", m.hostPort)
}

// Start ensures the container is running, creating it on first use.
func (m *DockerManager) Start(ctx context.Context) error {
	if _, err := m.cli.Ping(ctx); err != nil {
		return fmt.Errorf("docker is not running: %w", err)
	}

	status, containerID, err := m.lookup(ctx)
	if err != nil {
		return err
	}

	switch status {
	case StatusRunning:
		return nil
	case StatusStopped:
		if err := m.cli.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
			return fmt.Errorf("failed to start existing container: %w", err)
		}
		return m.WaitReady(ctx, 30*time.Second)
	case StatusNotFound:
		return m.createAndStart(ctx)
	default:
		return fmt.Errorf("container in unexpected state: %s", status)
	}
}

// Stop stops the container if it exists.
func (m *DockerManager) Stop(ctx context.Context) error {
	status, containerID, err := m.lookup(ctx)
	if err != nil {
		return err
	}
	if status == StatusNotFound {
		return nil
	}

	timeout := 10
	if err := m.cli.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &timeout}); err != nil {
		return fmt.Errorf("failed to stop container: %w", err)
	}
	return nil
}

// Remove stops and removes the container and its volumes.
func (m *DockerManager) Remove(ctx context.Context) error {
	status, containerID, err := m.lookup(ctx)
	if err != nil {
		return err
	}
	if status == StatusNotFound {
		return nil
	}

	if status == StatusRunning {
		if err := m.Stop(ctx); err != nil {
			return err
		}
	}

	if err := m.cli.ContainerRemove(ctx, containerID, container.RemoveOptions{
		Force:         true,
		RemoveVolumes: true,
	}); err != nil {
		return fmt.Errorf("failed to remove container: %w", err)
	}
	return nil
}

// Status reports the container's current state.
func (m *DockerManager) Status(ctx context.Context) (ContainerStatus, error) {
	status, _, err := m.lookup(ctx)
	return status, err
}

// Logs returns the tail of the container's combined output.
func (m *DockerManager) Logs(ctx context.Context, tail string) (string, error) {
	status, containerID, err := m.lookup(ctx)
	if err != nil {
		return "", err
	}
	if status == StatusNotFound {
		return "", fmt.Errorf("container not found")
	}

	logs, err := m.cli.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Tail:       tail,
	})
	if err != nil {
		return "", fmt.Errorf("failed to get logs: %w", err)
	}
	defer logs.Close()

	out, err := io.ReadAll(logs)
	if err != nil {
		return "", fmt.Errorf("failed to read logs: %w", err)
	}
	return string(out), nil
}

// WaitReady polls the health endpoint until DefraDB accepts requests.
func (m *DockerManager) WaitReady(ctx context.Context, timeout time.Duration) error {
	httpClient := &http.Client{Timeout: 2 * time.Second}
	url := m.URL() + "/health-check"

	return retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
			if err != nil {
				return err
			}
			resp, err := httpClient.Do(req)
			if err != nil {
				return err
			}
			_ = resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("unhealthy status: %d", resp.StatusCode)
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(timeout.Seconds())),
		retry.Delay(1*time.Second),
	)
}

func (m *DockerManager) createAndStart(ctx context.Context) error {
	if err := m.ensureImage(ctx); err != nil {
		return err
	}

	containerConfig := &container.Config{
		Image: m.imageName,
		Cmd: []string{
			"start",
			"--no-keyring",
			"--url", "0.0.0.0:9181",
			"--store", "badger",
			"--rootdir", DataDir,
		},
		Labels: m.labels,
		ExposedPorts: nat.PortSet{
			ContainerPort: struct{}{},
		},
		Healthcheck: &container.HealthConfig{
			Test:        []string{"CMD", "curl", "-sf", "http://localhost:9181/health-check"},
			Interval:    2 * time.Second,
			Timeout:     5 * time.Second,
			Retries:     10,
			StartPeriod: 5 * time.Second,
		},
	}

	hostConfig := &container.HostConfig{
		PortBindings: nat.PortMap{
			ContainerPort: []nat.PortBinding{
				{HostIP: "127.0.0.1", HostPort: m.hostPort},
			},
		},
	}
	if m.dataPath != "" {
		hostConfig.Mounts = []mount.Mount{
			{
				Type:   mount.TypeBind,
				Source: m.dataPath,
				Target: DataDir,
			},
		}
	}

	resp, err := m.cli.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, m.containerName)
	if err != nil {
		return fmt.Errorf("failed to create container: %w", err)
	}

	if err := m.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		_ = m.cli.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true})
		return fmt.Errorf("failed to start container: %w", err)
	}

	return m.WaitReady(ctx, 30*time.Second)
}

func (m *DockerManager) lookup(ctx context.Context) (ContainerStatus, string, error) {
	filterArgs := filters.NewArgs()
	filterArgs.Add("name", m.containerName)

	containers, err := m.cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filterArgs,
	})
	if err != nil {
		return "", "", fmt.Errorf("failed to list containers: %w", err)
	}
	if len(containers) == 0 {
		return StatusNotFound, "", nil
	}

	c := containers[0]
	switch c.State {
	case "running":
		return StatusRunning, c.ID, nil
	case "exited", "dead":
		return StatusStopped, c.ID, nil
	case "created", "restarting":
		return StatusStarting, c.ID, nil
	default:
		return ContainerStatus(c.State), c.ID, nil
	}
}

func (m *DockerManager) ensureImage(ctx context.Context) error {
	if _, err := m.cli.ImageInspect(ctx, m.imageName); err == nil {
		return nil
	}

	reader, err := m.cli.ImagePull(ctx, m.imageName, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image: %w", err)
	}
	defer reader.Close()

	_, err = io.Copy(io.Discard, reader)
	return err
}
