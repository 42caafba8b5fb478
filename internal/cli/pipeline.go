package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

// NewPipelineCmd создаёт группу команд для управления pipeline.
func NewPipelineCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pipeline",
		Short: "Manage pipelines",
	}

	cmd.AddCommand(
		newPipelineListCmd(clientFn, outputFn),
		newPipelineSubmitCmd(clientFn, outputFn),
		newPipelineShowCmd(clientFn, outputFn),
		newPipelineCancelCmd(clientFn, outputFn),
		newPipelinePauseCmd(clientFn, outputFn),
		newPipelineResumeCmd(clientFn, outputFn),
		newPipelineTasksCmd(clientFn, outputFn),
		newPipelineAttemptsCmd(clientFn, outputFn),
	)

	return cmd
}

// pipelineRow строит табличную строку для pipeline.
func pipelineRow(p *PipelineResponse) []string {
	return []string{p.ID, p.Name, p.Status, ratio(p.Stats.Succeeded, p.Stats.Total), p.CreatedAt}
}

var pipelineHeaders = []string{"ID", "NAME", "STATUS", "DONE", "CREATED"}

func newPipelineListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var status string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List pipelines",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			pipelines, err := client.ListPipelines(status, limit)
			if err != nil {
				return err
			}

			rows := make([][]string, len(pipelines))
			for i := range pipelines {
				rows[i] = pipelineRow(&pipelines[i])
			}

			out.Print(pipelineHeaders, rows, pipelines)
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Filter by status (ACTIVE, COMPLETED, FAILED, PAUSED, CANCELLED)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of results")

	return cmd
}

func newPipelineSubmitCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a pipeline document",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			doc, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("read pipeline document: %w", err)
			}
			if !json.Valid(doc) {
				return fmt.Errorf("%s is not valid JSON", file)
			}

			pipeline, err := client.SubmitPipeline(doc)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Pipeline submitted: %s", pipeline.ID))
			out.Print(pipelineHeaders, [][]string{pipelineRow(pipeline)}, pipeline)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Path to pipeline document (JSON)")
	cmd.MarkFlagRequired("file")

	return cmd
}

func newPipelineShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show pipeline details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			pipeline, err := client.GetPipeline(args[0])
			if err != nil {
				return err
			}

			out.Print(pipelineHeaders, [][]string{pipelineRow(pipeline)}, pipeline)
			return nil
		},
	}
}

func newPipelineCancelCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel ID",
		Short: "Cancel a pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			pipeline, err := client.CancelPipeline(args[0])
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Pipeline cancelled: %s", pipeline.ID))
			return nil
		},
	}
}

func newPipelinePauseCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "pause ID",
		Short: "Pause a pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			pipeline, err := client.PausePipeline(args[0])
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Pipeline paused: %s", pipeline.ID))
			return nil
		},
	}
}

func newPipelineResumeCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "resume ID",
		Short: "Resume a paused pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			pipeline, err := client.ResumePipeline(args[0])
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Pipeline resumed: %s", pipeline.ID))
			return nil
		},
	}
}

func newPipelineTasksCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "tasks PIPELINE_ID",
		Short: "List tasks in a pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			tasks, err := client.ListTasks(args[0])
			if err != nil {
				return err
			}

			headers := []string{"ID", "TYPE", "STATE", "CLASS", "RETRIES", "ERROR"}
			rows := make([][]string, len(tasks))
			for i, t := range tasks {
				rows[i] = []string{t.ID, t.Type, t.State, t.Class, ratio(t.RetryCount, t.RetryBudget), t.LastError}
			}

			out.Print(headers, rows, tasks)
			return nil
		},
	}
}

func newPipelineAttemptsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var taskID string

	cmd := &cobra.Command{
		Use:   "attempts PIPELINE_ID",
		Short: "Show the execution attempt journal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			attempts, err := client.ListAttempts(args[0], taskID)
			if err != nil {
				return err
			}

			headers := []string{"TASK", "ATTEMPT", "OUTCOME", "STRATEGY", "STARTED", "ERROR"}
			rows := make([][]string, len(attempts))
			for i, a := range attempts {
				rows[i] = []string{a.TaskID, strconv.Itoa(a.Attempt), a.Outcome, a.Strategy, a.StartedAt, a.Error}
			}

			out.Print(headers, rows, attempts)
			return nil
		},
	}

	cmd.Flags().StringVar(&taskID, "task", "", "Only attempts of this task")

	return cmd
}
