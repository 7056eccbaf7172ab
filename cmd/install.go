package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"streamjobs/internal/service"

	"github.com/spf13/cobra"
)

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Start the daemon automatically at login",
	RunE: func(cmd *cobra.Command, args []string) error {
		execPath, err := os.Executable()
		if err != nil {
			return fmt.Errorf("failed to locate executable: %w", err)
		}

		execPath, err = filepath.EvalSymlinks(execPath)
		if err != nil {
			return fmt.Errorf("failed to resolve executable: %w", err)
		}

		installer, err := service.New()
		if err != nil {
			return err
		}

		if ok, _ := installer.Installed(); ok {
			fmt.Println("already installed")
			return nil
		}

		if err := installer.Install(execPath); err != nil {
			return err
		}

		fmt.Printf("%s installed: %s daemon\n", service.Name, execPath)
		return nil
	},
}

var uninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Remove the login autostart entry",
	RunE: func(cmd *cobra.Command, args []string) error {
		installer, err := service.New()
		if err != nil {
			return err
		}

		if err := installer.Uninstall(); err != nil {
			return err
		}

		fmt.Printf("%s uninstalled\n", service.Name)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(installCmd, uninstallCmd)
}
