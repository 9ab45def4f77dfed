package sweep

import (
	"fmt"
	"os"
	"path/filepath"
	"text/template"
)

// SlurmArgs carries the scheduler parameters rendered into the jobscript.
type SlurmArgs struct {
	JobName      string `yaml:"job_name"`
	Walltime     string `yaml:"walltime"`
	NodeNumber   int    `yaml:"node_number"`
	GPUNumber    int    `yaml:"gpu_number"`
	CPUPerGPU    int    `yaml:"cpu_per_gpu"`
	TemplatePath string `yaml:"template_path"`
}

func (s *SlurmArgs) applyDefaults() {
	if s.JobName == "" {
		s.JobName = "metrics_experiment"
	}
	if s.Walltime == "" {
		s.Walltime = "0-0:30:0"
	}
	if s.NodeNumber == 0 {
		s.NodeNumber = 1
	}
	if s.GPUNumber == 0 {
		s.GPUNumber = 1
	}
	if s.CPUPerGPU == 0 {
		s.CPUPerGPU = 36
	}
}

type jobScriptParams struct {
	JobName     string
	Walltime    string
	NodeNumber  int
	GPUNumber   int
	CPUPerGPU   int
	ConfigPath  string
	ArrayNumber int
	ConfigType  string
}

// defaultJobScript runs one array task per generated config file.
const defaultJobScript = `#!/bin/bash
#SBATCH --job-name={{.JobName}}
#SBATCH --time={{.Walltime}}
#SBATCH --nodes={{.NodeNumber}}
#SBATCH --gpus={{.GPUNumber}}
#SBATCH --cpus-per-gpu={{.CPUPerGPU}}
#SBATCH --array=1-{{.ArrayNumber}}

transfer-metrics run --config {{.ConfigPath}}/config_{{.ConfigType}}_${SLURM_ARRAY_TASK_ID}.yaml
`

// WriteJobScript renders the array jobscript for a generated batch into the
// batch directory and returns its path. A custom template file can be set via
// slurm.template_path; otherwise the built-in template is used.
func (c *TopLevelConfig) WriteJobScript(dir string, arrayNumber int) (string, error) {
	params := jobScriptParams{
		JobName:     c.Slurm.JobName,
		Walltime:    c.Slurm.Walltime,
		NodeNumber:  c.Slurm.NodeNumber,
		GPUNumber:   c.Slurm.GPUNumber,
		CPUPerGPU:   c.Slurm.CPUPerGPU,
		ConfigPath:  dir,
		ArrayNumber: arrayNumber,
		ConfigType:  "metrics",
	}

	tmpl, err := c.jobScriptTemplate()
	if err != nil {
		return "", err
	}

	path := filepath.Join(dir, fmt.Sprintf("metrics_jobscript_%s.sh", c.ConfigGenDtime))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create jobscript: %w", err)
	}
	defer f.Close()

	if err := tmpl.Execute(f, params); err != nil {
		return "", fmt.Errorf("failed to render jobscript: %w", err)
	}
	return path, nil
}

func (c *TopLevelConfig) jobScriptTemplate() (*template.Template, error) {
	if c.Slurm.TemplatePath == "" {
		return template.Must(template.New("jobscript").Parse(defaultJobScript)), nil
	}
	tmpl, err := template.ParseFiles(c.Slurm.TemplatePath)
	if err != nil {
		return nil, fmt.Errorf("failed to parse jobscript template: %w", err)
	}
	return tmpl, nil
}
