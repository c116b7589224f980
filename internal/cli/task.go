package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"focuser/internal/bus"
	"focuser/internal/models"
)

var taskCmd = &cobra.Command{
	Use:     "task",
	Aliases: []string{"tasks"},
	Short:   "Manage tasks",
}

var taskAddCmd = &cobra.Command{
	Use:   "add [title]",
	Short: "Add a task",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runTaskAdd,
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks",
	Args:  cobra.NoArgs,
	RunE:  runTaskList,
}

var taskUpdateCmd = &cobra.Command{
	Use:   "update [task-id]",
	Short: "Change fields of a task",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskUpdate,
}

var taskStartCmd = &cobra.Command{
	Use:   "start [task-id]",
	Short: "Mark a task in progress",
	Args:  cobra.ExactArgs(1),
	RunE:  taskAction(bus.ActionStartTask, "Started"),
}

var taskDoneCmd = &cobra.Command{
	Use:   "done [task-id]",
	Short: "Complete a task",
	Args:  cobra.ExactArgs(1),
	RunE:  taskAction(bus.ActionCompleteTask, "Completed"),
}

var taskDeleteCmd = &cobra.Command{
	Use:   "delete [task-id]",
	Short: "Delete a task",
	Args:  cobra.ExactArgs(1),
	RunE:  taskAction(bus.ActionDeleteTask, "Deleted"),
}

var taskStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show task statistics",
	Args:  cobra.NoArgs,
	RunE:  runTaskStats,
}

var taskExportCmd = &cobra.Command{
	Use:   "export [file]",
	Short: "Export tasks as JSON (stdout without a file)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runTaskExport,
}

var taskImportCmd = &cobra.Command{
	Use:   "import [file]",
	Short: "Append tasks from a JSON export",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskImport,
}

func init() {
	taskCmd.AddCommand(taskAddCmd)
	taskCmd.AddCommand(taskListCmd)
	taskCmd.AddCommand(taskUpdateCmd)
	taskCmd.AddCommand(taskStartCmd)
	taskCmd.AddCommand(taskDoneCmd)
	taskCmd.AddCommand(taskDeleteCmd)
	taskCmd.AddCommand(taskStatsCmd)
	taskCmd.AddCommand(taskExportCmd)
	taskCmd.AddCommand(taskImportCmd)

	for _, c := range []*cobra.Command{taskAddCmd, taskUpdateCmd} {
		c.Flags().String("description", "", "Task description")
		c.Flags().String("priority", "", "low, medium or high")
		c.Flags().String("category", "", "Task category")
		c.Flags().Int("estimate", 0, "Estimated minutes")
		c.Flags().String("tags", "", "Comma-separated tags")
	}
	taskUpdateCmd.Flags().String("title", "", "New title")
	taskUpdateCmd.Flags().String("status", "", "pending, in-progress or completed")
	taskUpdateCmd.Flags().Int("actual", 0, "Actual minutes spent")

	taskListCmd.Flags().String("status", "", "Filter by status")
	taskListCmd.Flags().String("priority", "", "Filter by priority")
	taskListCmd.Flags().String("category", "", "Filter by category")
	taskListCmd.Flags().String("tag", "", "Filter by tag")
	taskListCmd.Flags().String("sort", "", "Sort field (createdAt, priority, title, ...)")
	taskListCmd.Flags().Bool("asc", false, "Sort ascending")
	taskListCmd.Flags().Bool("json", false, "Print JSON")
}

func runTaskAdd(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	description, _ := flags.GetString("description")
	priority, _ := flags.GetString("priority")
	category, _ := flags.GetString("category")
	tags, _ := flags.GetString("tags")

	task := models.NewTask{
		Title:       strings.Join(args, " "),
		Description: description,
		Priority:    models.Priority(priority),
		Category:    category,
		Tags:        splitTags(tags),
	}
	if flags.Changed("estimate") {
		estimate, _ := flags.GetInt("estimate")
		task.EstimatedTime = &estimate
	}

	var created models.Task
	if err := call(cmd, bus.Message{Action: bus.ActionAddTask, Task: &task}, &created); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Added %s: %s\n", created.ID, created.Title)
	return nil
}

func runTaskList(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	status, _ := flags.GetString("status")
	priority, _ := flags.GetString("priority")
	category, _ := flags.GetString("category")
	tag, _ := flags.GetString("tag")
	sortBy, _ := flags.GetString("sort")
	asc, _ := flags.GetBool("asc")
	asJSON, _ := flags.GetBool("json")

	filter := models.TaskFilter{
		Status:   models.TaskStatus(status),
		Priority: models.Priority(priority),
		Category: category,
		Tag:      tag,
		SortBy:   sortBy,
	}
	if asc {
		filter.SortOrder = models.SortAsc
	}

	var list []models.Task
	if err := call(cmd, bus.Message{Action: bus.ActionGetTasks, Filter: &filter}, &list); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if asJSON {
		return printJSON(out, list)
	}
	if len(list) == 0 {
		fmt.Fprintln(out, "No tasks found.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tPRIORITY\tCATEGORY\tPOMODOROS\tTITLE")
	for _, t := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n", t.ID, t.Status, t.Priority, t.Category, t.PomodoroSessions, t.Title)
	}
	return w.Flush()
}

func runTaskUpdate(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	var updates models.TaskUpdate
	changed := false

	str := func(name string) *string {
		if !flags.Changed(name) {
			return nil
		}
		changed = true
		v, _ := flags.GetString(name)
		return &v
	}
	num := func(name string) *int {
		if !flags.Changed(name) {
			return nil
		}
		changed = true
		v, _ := flags.GetInt(name)
		return &v
	}

	updates.Title = str("title")
	updates.Description = str("description")
	updates.Category = str("category")
	updates.EstimatedTime = num("estimate")
	updates.ActualTime = num("actual")
	if p := str("priority"); p != nil {
		priority := models.Priority(*p)
		updates.Priority = &priority
	}
	if s := str("status"); s != nil {
		status := models.TaskStatus(*s)
		if !status.Valid() {
			return fmt.Errorf("invalid status %q (want pending, in-progress or completed)", *s)
		}
		updates.Status = &status
	}
	if t := str("tags"); t != nil {
		updates.Tags = splitTags(*t)
	}
	if !changed {
		return fmt.Errorf("nothing to update")
	}

	var task models.Task
	msg := bus.Message{Action: bus.ActionUpdateTask, TaskID: args[0], Updates: &updates}
	if err := call(cmd, msg, &task); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Updated %s: %s (%s)\n", task.ID, task.Title, task.Status)
	return nil
}

func taskAction(action, verb string) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		var task models.Task
		if err := call(cmd, bus.Message{Action: action, TaskID: args[0]}, &task); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %s\n", verb, task.ID, task.Title)
		return nil
	}
}

func runTaskStats(cmd *cobra.Command, args []string) error {
	var stats models.TaskStats
	if err := call(cmd, bus.Message{Action: bus.ActionGetTaskStats}, &stats); err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), stats)
}

func runTaskExport(cmd *cobra.Command, args []string) error {
	var data string
	if err := call(cmd, bus.Message{Action: bus.ActionExportTasks}, &data); err != nil {
		return err
	}
	return writeOutput(cmd, args, []byte(data))
}

func runTaskImport(cmd *cobra.Command, args []string) error {
	data, err := readJSONFile(args[0])
	if err != nil {
		return err
	}

	var result struct {
		Imported int `json:"imported"`
	}
	if err := call(cmd, bus.Message{Action: bus.ActionImportTasks, Data: data}, &result); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Imported %d tasks\n", result.Imported)
	return nil
}

func splitTags(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var tags []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// writeOutput writes data to the file named in args, or to stdout.
func writeOutput(cmd *cobra.Command, args []string, data []byte) error {
	if len(args) == 0 {
		_, err := fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return err
	}
	if err := os.WriteFile(args[0], data, 0644); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", args[0])
	return nil
}

func readJSONFile(path string) (json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("%s is not valid JSON", path)
	}
	return json.RawMessage(data), nil
}
