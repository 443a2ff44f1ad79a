// Package sandbox runs kernel binaries inside a container so benchmark
// measurements on shared hosts are isolated from ambient load and the
// host filesystem. It satisfies bench.BinaryRunner and is enabled by
// configuring a sandbox image.
package sandbox

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/moby/moby/api/types/container"
	"github.com/moby/moby/api/types/mount"
	"github.com/moby/moby/client"
	"github.com/signalnine/crucible/internal/config"
)

type Runner struct {
	image    string
	cpuLimit float64
	memLimit int64
}

func NewRunner(cfg config.Sandbox) *Runner {
	return &Runner{
		image:    cfg.Image,
		cpuLimit: cfg.CPULimit,
		memLimit: cfg.MemoryLimitMB * 1024 * 1024,
	}
}

// RunBinary executes a built kernel binary in the sandbox image. The
// binary's directory is bind-mounted read-only at /bench and the combined
// container log is returned as the kernel's output. A non-zero exit is an
// error, matching direct execution semantics.
func (r *Runner) RunBinary(ctx context.Context, exePath string) (string, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return "", fmt.Errorf("creating docker client: %w", err)
	}
	defer cli.Close()

	exeAbs, err := filepath.Abs(exePath)
	if err != nil {
		return "", fmt.Errorf("resolving binary path: %w", err)
	}

	hostCfg := &container.HostConfig{
		Mounts: []mount.Mount{{
			Type:     mount.TypeBind,
			Source:   filepath.Dir(exeAbs),
			Target:   "/bench",
			ReadOnly: true,
		}},
	}
	if r.cpuLimit > 0 {
		hostCfg.NanoCPUs = int64(r.cpuLimit * 1e9)
	}
	if r.memLimit > 0 {
		hostCfg.Memory = r.memLimit
	}

	containerCfg := &container.Config{
		Image:  r.image,
		Cmd:    []string{"/bench/" + filepath.Base(exeAbs)},
		Labels: map[string]string{"crucible": "true"},
	}

	createResp, err := cli.ContainerCreate(ctx, client.ContainerCreateOptions{
		Config:     containerCfg,
		HostConfig: hostCfg,
	})
	if err != nil {
		return "", fmt.Errorf("creating container: %w", err)
	}
	containerID := createResp.ID
	defer func() {
		cli.ContainerRemove(context.Background(), containerID, client.ContainerRemoveOptions{Force: true})
	}()

	if _, err := cli.ContainerStart(ctx, containerID, client.ContainerStartOptions{}); err != nil {
		return "", fmt.Errorf("starting container: %w", err)
	}

	waitResult := cli.ContainerWait(ctx, containerID, client.ContainerWaitOptions{
		Condition: container.WaitConditionNotRunning,
	})
	errCh := waitResult.Error
	for {
		select {
		case err := <-errCh:
			if err != nil {
				cli.ContainerKill(context.Background(), containerID, client.ContainerKillOptions{Signal: "SIGKILL"})
				return "", fmt.Errorf("waiting for kernel container: %w", err)
			}
			errCh = nil
		case status := <-waitResult.Result:
			output := r.containerOutput(cli, containerID)
			if status.StatusCode != 0 {
				return output, fmt.Errorf("kernel container exited with status %d", status.StatusCode)
			}
			return output, nil
		}
	}
}

func (r *Runner) containerOutput(cli *client.Client, containerID string) string {
	logReader, err := cli.ContainerLogs(context.Background(), containerID, client.ContainerLogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil || logReader == nil {
		return ""
	}
	defer logReader.Close()
	data, _ := io.ReadAll(logReader)
	return string(data)
}
