package encoder

import (
	"io"
	"os/exec"
)

type execStarter struct{}

func (execStarter) Start(binary string, args []string, output io.Writer) (Process, error) {
	cmd := exec.Command(binary, args...)
	if output != nil {
		cmd.Stdout = output
		cmd.Stderr = output
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &execProcess{cmd: cmd}, nil
}

type execProcess struct {
	cmd *exec.Cmd
}

func (p *execProcess) Kill() error { return p.cmd.Process.Kill() }

func (p *execProcess) Wait() error { return p.cmd.Wait() }

func (p *execProcess) Pid() int { return p.cmd.Process.Pid }
