package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/MarcoPoloResearchLab/cins/internal/client"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

const envPrefix = "CINS"

// passwordReader prompts for a secret.
type passwordReader func(prompt string) (string, error)

func main() {
	rootCmd := newRootCommand(terminalPassword(os.Stdin, os.Stderr))
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

type cliOptions struct {
	viper        *viper.Viper
	readPassword passwordReader
}

func (o *cliOptions) apiClient() (*client.Client, error) {
	return client.New(client.Config{BaseURL: o.viper.GetString("api.url")})
}

func (o *cliOptions) tokenFile() client.TokenFile {
	return client.TokenFile{Path: o.viper.GetString("token.file")}
}

func newRootCommand(readPassword passwordReader) *cobra.Command {
	configViper := viper.New()
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()
	configViper.SetDefault("api.url", client.DefaultBaseURL)
	configViper.SetDefault("token.file", client.DefaultTokenPath())

	options := &cliOptions{viper: configViper, readPassword: readPassword}

	rootCmd := &cobra.Command{
		Use:          "cins",
		Short:        "Save, search and replay shell commands",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().String("api-url", configViper.GetString("api.url"), "Base URL of the cins API")
	rootCmd.PersistentFlags().String("token-file", configViper.GetString("token.file"), "File holding the login token")
	mustBind(configViper, rootCmd, "api.url", "api-url")
	mustBind(configViper, rootCmd, "token.file", "token-file")

	rootCmd.AddCommand(
		newRegisterCommand(options),
		newLoginCommand(options),
		newSearchCommand(options),
		newSaveCommand(options),
		newMacroSearchCommand(options),
		newMacroNamesCommand(options),
		newMacroSaveCommand(options),
	)
	return rootCmd
}

func mustBind(configViper *viper.Viper, cmd *cobra.Command, key, flag string) {
	if err := configViper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

// terminalPassword reads without echo from a terminal and falls back to one
// line of input when stdin is piped.
func terminalPassword(in *os.File, prompt io.Writer) passwordReader {
	return func(label string) (string, error) {
		fmt.Fprint(prompt, label)
		fd := int(in.Fd())
		if term.IsTerminal(fd) {
			secret, err := term.ReadPassword(fd)
			fmt.Fprintln(prompt)
			if err != nil {
				return "", err
			}
			return string(secret), nil
		}
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && err != io.EOF {
			return "", err
		}
		return strings.TrimRight(line, "\r\n"), nil
	}
}
