package commands

import (
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/manifoldco/promptui"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check that the server answers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := dial()
		if err != nil {
			return err
		}
		defer c.Close()
		if err := c.Ping(); err != nil {
			return err
		}
		fmt.Printf("%s is alive\n", serverAddr)
		return nil
	},
}

var mkdirCmd = &cobra.Command{
	Use:   "mkdir <path>",
	Short: "Create a directory on the server",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := dial()
		if err != nil {
			return err
		}
		defer c.Close()
		code, err := c.CreateDirectory(args[0])
		if err != nil {
			return err
		}
		return checkCode("mkdir", code)
	},
}

var touchCmd = &cobra.Command{
	Use:   "touch <path>",
	Short: "Create an empty file on the server",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := dial()
		if err != nil {
			return err
		}
		defer c.Close()
		code, err := c.CreateFile(args[0])
		if err != nil {
			return err
		}
		return checkCode("touch", code)
	},
}

var removeInteractive bool

var rmdirCmd = &cobra.Command{
	Use:   "rmdir <path>",
	Short: "Remove a directory on the server",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if removeInteractive && !confirmRemoval(args[0]) {
			return nil
		}
		c, err := dial()
		if err != nil {
			return err
		}
		defer c.Close()
		code, err := c.RemoveDirectory(args[0])
		if err != nil {
			return err
		}
		return checkCode("rmdir", code)
	},
}

var rmCmd = &cobra.Command{
	Use:   "rm <path>",
	Short: "Remove a file on the server",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if removeInteractive && !confirmRemoval(args[0]) {
			return nil
		}
		c, err := dial()
		if err != nil {
			return err
		}
		defer c.Close()
		code, err := c.RemoveFile(args[0])
		if err != nil {
			return err
		}
		return checkCode("rm", code)
	},
}

func init() {
	rmCmd.Flags().BoolVarP(&removeInteractive, "interactive", "i", false, "ask before removing")
	rmdirCmd.Flags().BoolVarP(&removeInteractive, "interactive", "i", false, "ask before removing")
}

// confirmRemoval prompts the operator before a removal. Returns false
// when the operator declines or the prompt is aborted.
func confirmRemoval(path string) bool {
	prompt := promptui.Prompt{
		Label:     fmt.Sprintf("remove %s", path),
		IsConfirm: true,
	}
	_, err := prompt.Run()
	return err == nil
}

var statCmd = &cobra.Command{
	Use:   "stat <path>",
	Short: "Show stat metadata for a served path",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := dial()
		if err != nil {
			return err
		}
		defer c.Close()
		info, err := c.GetFileInfo(args[0])
		if err != nil {
			return err
		}
		if err := checkCode("stat", info.ErrorCode); err != nil {
			return err
		}

		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"Field", "Value"})
		table.Append([]string{"path", args[0]})
		table.Append([]string{"mode", fs.FileMode(info.Mode).String()})
		table.Append([]string{"size", fmt.Sprintf("%d", info.Size)})
		table.Append([]string{"inode", fmt.Sprintf("%d", info.Inode)})
		table.Append([]string{"accessed", time.Unix(info.AccessTime, 0).Format(time.RFC3339)})
		table.Append([]string{"modified", time.Unix(info.ModificationTime, 0).Format(time.RFC3339)})
		table.Append([]string{"created", time.Unix(info.CreationTime, 0).Format(time.RFC3339)})
		table.Render()
		return nil
	},
}

var lsCmd = &cobra.Command{
	Use:   "ls <path>",
	Short: "List a served directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := dial()
		if err != nil {
			return err
		}
		defer c.Close()
		dir, err := c.GetDirectoryContents(args[0])
		if err != nil {
			return err
		}
		if err := checkCode("ls", dir.ErrorCode); err != nil {
			return err
		}

		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"Name"})
		table.SetBorder(false)
		for _, name := range dir.Contents {
			table.Append([]string{name})
		}
		table.Render()
		return nil
	},
}

var getCmd = &cobra.Command{
	Use:   "get <path> [local-file]",
	Short: "Download a file from the server",
	Long: `Download a file. With no local file argument the contents go to
standard output.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := dial()
		if err != nil {
			return err
		}
		defer c.Close()
		file, err := c.DownloadFile(args[0])
		if err != nil {
			return err
		}
		if err := checkCode("get", file.Info.ErrorCode); err != nil {
			return err
		}

		if len(args) == 2 {
			return os.WriteFile(args[1], file.Contents, 0644)
		}
		_, err = os.Stdout.Write(file.Contents)
		return err
	},
}

var putCmd = &cobra.Command{
	Use:   "put <local-file> <path>",
	Short: "Upload a local file to the server",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		contents, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}

		c, err := dial()
		if err != nil {
			return err
		}
		defer c.Close()
		info, err := c.UploadFile(args[1], contents)
		if err != nil {
			return err
		}
		if err := checkCode("put", info.ErrorCode); err != nil {
			return err
		}
		fmt.Printf("uploaded %s (%d bytes)\n", args[1], len(contents))
		return nil
	},
}
