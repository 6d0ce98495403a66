package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/yoanbernabeu/shellwire/internal/config"
	"github.com/yoanbernabeu/shellwire/internal/constants"
	"github.com/yoanbernabeu/shellwire/internal/security"
	"github.com/yoanbernabeu/shellwire/internal/ssh"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Configure targets",
	Long:  `Commands to add, list, and remove the servers shellwire connects to.`,
}

var serverAddCmd = &cobra.Command{
	Use:   "add <name> <user@host>",
	Short: "Add a new server",
	Long: `Adds a new server to the global configuration and tests the SSH
connection. If the default key is rejected, the keys in ~/.ssh are tried.

By default the ssh binary is used, so ~/.ssh/config applies. With
--transport native the connection is made in-process.

Examples:
  shellwire server add web deploy@my-vps.com
  shellwire server add staging user@staging.example.com --port 2222
  shellwire server add win admin@10.0.0.7 --transport native --dialect powershell`,
	Args: cobra.ExactArgs(2),
	RunE: runServerAdd,
}

var serverListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured servers",
	RunE:  runServerList,
}

var serverRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a server",
	Args:  cobra.ExactArgs(1),
	RunE:  runServerRemove,
}

var (
	serverPort      int
	serverKeyPath   string
	serverTransport string
	serverDialect   string
	serverStat      string
	serverShell     string
	skipSSHTest     bool
)

func init() {
	rootCmd.AddCommand(serverCmd)
	serverCmd.AddCommand(serverAddCmd)
	serverCmd.AddCommand(serverListCmd)
	serverCmd.AddCommand(serverRemoveCmd)

	serverAddCmd.Flags().IntVarP(&serverPort, "port", "p", constants.DefaultSSHPort, "SSH port")
	serverAddCmd.Flags().StringVarP(&serverKeyPath, "key", "k", "", "SSH private key path")
	serverAddCmd.Flags().StringVar(&serverTransport, "transport", constants.TransportSSH, "Transport: ssh (binary) or native")
	serverAddCmd.Flags().StringVar(&serverDialect, "dialect", constants.DialectPosix, "Remote shell dialect: posix or powershell")
	serverAddCmd.Flags().StringVar(&serverStat, "stat", "", "stat flavour for downloads: gnu or bsd")
	serverAddCmd.Flags().StringVar(&serverShell, "shell", "", "Remote command to start instead of the login shell")
	serverAddCmd.Flags().BoolVar(&skipSSHTest, "skip-test", false, "Skip SSH connection test")
}

// parseHostSpec splits user@host
func parseHostSpec(spec string) (string, string, error) {
	parts := strings.SplitN(spec, "@", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid host format, use user@host")
	}
	return parts[0], parts[1], nil
}

func runServerAdd(cmd *cobra.Command, args []string) error {
	name := args[0]

	if err := security.ValidateServerName(name); err != nil {
		return fmt.Errorf("invalid server name: %w", err)
	}

	user, host, err := parseHostSpec(args[1])
	if err != nil {
		return err
	}

	env, err := config.LoadEnv()
	if err != nil {
		return err
	}
	cfgPath := GetConfigFile(env)

	globalCfg, err := config.LoadGlobalConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("failed to load global config: %w", err)
	}

	serverCfg := config.ServerConfig{
		Host:      host,
		User:      user,
		Port:      serverPort,
		KeyPath:   serverKeyPath,
		Transport: serverTransport,
		Dialect:   serverDialect,
		Stat:      serverStat,
		Shell:     serverShell,
	}

	if errors := config.ValidateServerConfig(&serverCfg); errors.HasErrors() {
		return fmt.Errorf("invalid server configuration: %w", errors)
	}

	if err := globalCfg.AddServer(name, serverCfg); err != nil {
		return err
	}

	if err := config.SaveGlobalConfig(globalCfg, cfgPath); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	PrintSuccess("Added server '%s' (%s@%s)", name, user, host)

	if skipSSHTest {
		PrintInfo("Skipping SSH connection test (--skip-test)")
		printNextSteps(name)
		return nil
	}

	if err := testAndConfigureSSH(name, &serverCfg, globalCfg, env, cfgPath); err != nil {
		PrintWarning("SSH connection could not be established: %v", err)
		PrintInfo("You can test the connection manually with: ssh %s@%s -p %d", user, host, serverCfg.Port)
	}

	printNextSteps(name)
	return nil
}

func printNextSteps(name string) {
	fmt.Println()
	fmt.Println("Next step:")
	fmt.Printf("  Run 'shellwire run %s uname -a' to check the remote shell\n", name)
}

// testAndConfigureSSH tests the SSH connection and tries alternative keys if needed
func testAndConfigureSSH(name string, serverCfg *config.ServerConfig, globalCfg *config.GlobalConfig, env *config.Env, cfgPath string) error {
	PrintInfo("Testing SSH connection...")
	opts := sshOptions(globalCfg, env, nil)

	err := ssh.TryConnect(serverCfg.Host, serverCfg.User, serverCfg.Port, serverCfg.KeyPath, opts...)
	if err == nil {
		PrintSuccess("SSH connection successful")
		return nil
	}
	PrintWarning("Connection failed with default key")
	PrintVerbose("%v", err)

	keys, err := ssh.DiscoverSSHKeys()
	if err != nil {
		return fmt.Errorf("failed to discover SSH keys: %w", err)
	}

	// Filter out encrypted keys and the key already tried
	var availableKeys []ssh.SSHKeyInfo
	for _, key := range keys {
		if key.IsEncrypted {
			PrintVerbose("Skipping encrypted key: %s", key.Name)
			continue
		}
		if serverCfg.KeyPath != "" && key.Path == serverCfg.KeyPath {
			continue
		}
		availableKeys = append(availableKeys, key)
	}

	if len(availableKeys) == 0 {
		return fmt.Errorf("no SSH keys available to try")
	}

	var workingKey *ssh.SSHKeyInfo
	if IsInteractive() {
		workingKey = interactiveKeySelection(serverCfg, availableKeys, opts)
	} else {
		workingKey = autoTryKeys(serverCfg, availableKeys, opts)
	}

	if workingKey == nil {
		return fmt.Errorf("no working SSH key found")
	}

	serverCfg.KeyPath = workingKey.Path
	globalCfg.Servers[name] = *serverCfg

	if err := config.SaveGlobalConfig(globalCfg, cfgPath); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	PrintSuccess("Updated server config with key: %s", workingKey.Path)
	return nil
}

// interactiveKeySelection prompts the user to select an SSH key
func interactiveKeySelection(serverCfg *config.ServerConfig, keys []ssh.SSHKeyInfo, opts []ssh.ClientOption) *ssh.SSHKeyInfo {
	options := make([]string, len(keys))
	for i, key := range keys {
		options[i] = fmt.Sprintf("%s (%s)", key.Name, key.Type)
	}

	fmt.Println()
	PrintInfo("Available SSH keys:")
	choice := PromptSelect("Select SSH key to use:", options)
	if choice < 0 {
		return nil
	}

	selectedKey := &keys[choice]
	PrintInfo("Testing with %s...", selectedKey.Path)

	if err := ssh.TryConnect(serverCfg.Host, serverCfg.User, serverCfg.Port, selectedKey.Path, opts...); err != nil {
		PrintError("Connection failed: %v", err)
		return nil
	}

	PrintSuccess("Connection successful!")
	return selectedKey
}

// autoTryKeys tries available keys in order
func autoTryKeys(serverCfg *config.ServerConfig, keys []ssh.SSHKeyInfo, opts []ssh.ClientOption) *ssh.SSHKeyInfo {
	PrintInfo("Trying available SSH keys automatically...")

	for i := range keys {
		PrintVerbose("Trying %s...", keys[i].Name)
		if err := ssh.TryConnect(serverCfg.Host, serverCfg.User, serverCfg.Port, keys[i].Path, opts...); err == nil {
			PrintSuccess("SSH connection successful with %s", keys[i].Name)
			return &keys[i]
		}
	}

	return nil
}

func runServerList(cmd *cobra.Command, args []string) error {
	env, err := config.LoadEnv()
	if err != nil {
		return err
	}
	globalCfg, err := config.LoadGlobalConfig(GetConfigFile(env))
	if err != nil {
		return err
	}

	servers := globalCfg.ListServers()
	if len(servers) == 0 {
		PrintInfo("No servers configured")
		fmt.Println()
		fmt.Println("Add a server with:")
		fmt.Println("  shellwire server add <name> <user@host>")
		return nil
	}

	fmt.Println("Configured servers:")
	fmt.Println()
	for _, name := range servers {
		server := globalCfg.Servers[name]
		fmt.Printf("  %s\n", name)
		fmt.Printf("    Host:      %s@%s:%d\n", server.User, server.Host, server.Port)
		fmt.Printf("    Transport: %s\n", server.TransportOrDefault())
		if server.Dialect != "" {
			fmt.Printf("    Dialect:   %s\n", server.Dialect)
		}
		if server.KeyPath != "" {
			fmt.Printf("    Key:       %s\n", server.KeyPath)
		}
		if server.Shell != "" {
			fmt.Printf("    Shell:     %s\n", server.Shell)
		}
		fmt.Println()
	}

	return nil
}

func runServerRemove(cmd *cobra.Command, args []string) error {
	name := args[0]

	if err := security.ValidateServerName(name); err != nil {
		return fmt.Errorf("invalid server name: %w", err)
	}

	env, err := config.LoadEnv()
	if err != nil {
		return err
	}
	cfgPath := GetConfigFile(env)

	globalCfg, err := config.LoadGlobalConfig(cfgPath)
	if err != nil {
		return err
	}

	if err := globalCfg.RemoveServer(name); err != nil {
		return err
	}

	if err := config.SaveGlobalConfig(globalCfg, cfgPath); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	PrintSuccess("Removed server '%s'", name)
	return nil
}
