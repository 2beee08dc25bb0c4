package main

import (
	"fmt"

	"github.com/MarcoPoloResearchLab/cins/internal/client"
	"github.com/spf13/cobra"
)

const passwordPrompt = "Enter your password: "

func newRegisterCommand(options *cliOptions) *cobra.Command {
	var username string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a new user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := options.readPassword(passwordPrompt)
			if err != nil {
				return err
			}
			apiClient, err := options.apiClient()
			if err != nil {
				return err
			}
			if _, err := apiClient.Register(cmd.Context(), username, password); err != nil {
				return fmt.Errorf("registration failed: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Registration successful")
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "Username for registration")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

func newLoginCommand(options *cliOptions) *cobra.Command {
	var username string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Login and store the access token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := options.readPassword(passwordPrompt)
			if err != nil {
				return err
			}
			apiClient, err := options.apiClient()
			if err != nil {
				return err
			}
			token, err := apiClient.Login(cmd.Context(), username, password)
			if err != nil {
				return fmt.Errorf("login failed: %w", err)
			}
			if err := options.tokenFile().Save(token); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Login successful, token saved.")
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "Username for login")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

func newSearchCommand(options *cliOptions) *cobra.Command {
	var params client.SearchParams
	cmd := &cobra.Command{
		Use:     "search",
		Aliases: []string{"sc"},
		Short:   "Search saved commands, newest first",
		Args:    cobra.NoArgs,
		RunE: withSession(options, func(cmd *cobra.Command, apiClient *client.Client, token string) error {
			entries, err := apiClient.SearchCommands(cmd.Context(), token, params)
			if err != nil {
				return fmt.Errorf("search failed: %w", err)
			}
			for _, entry := range entries {
				if params.IncludeIDs {
					fmt.Fprintln(cmd.OutOrStdout(), entry.ID, entry.Text)
					continue
				}
				fmt.Fprintln(cmd.OutOrStdout(), entry.Text)
			}
			return nil
		}),
	}
	cmd.Flags().StringVarP(&params.Keyword, "keyword", "k", "", "Keyword to search for")
	cmd.Flags().IntVarP(&params.Limit, "limit", "l", 0, "Maximum number of commands, 0 returns all matches")
	cmd.Flags().BoolVarP(&params.IncludeIDs, "include-ids", "i", false, "Print command ids for building macros")
	return cmd
}

func newSaveCommand(options *cliOptions) *cobra.Command {
	var text string
	cmd := &cobra.Command{
		Use:     "save",
		Aliases: []string{"sv"},
		Short:   "Save a command",
		Args:    cobra.NoArgs,
		RunE: withSession(options, func(cmd *cobra.Command, apiClient *client.Client, token string) error {
			id, err := apiClient.SaveCommand(cmd.Context(), token, text)
			if err != nil {
				return fmt.Errorf("save failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved command %d: %s\n", id, text)
			return nil
		}),
	}
	cmd.Flags().StringVarP(&text, "command", "c", "", "Command to save")
	_ = cmd.MarkFlagRequired("command")
	return cmd
}

func newMacroSearchCommand(options *cliOptions) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:     "macro-search",
		Aliases: []string{"msc"},
		Short:   "Print the commands of a macro, the newest macro when no name is given",
		Args:    cobra.NoArgs,
		RunE: withSession(options, func(cmd *cobra.Command, apiClient *client.Client, token string) error {
			texts, err := apiClient.GetMacro(cmd.Context(), token, name)
			if err != nil {
				return fmt.Errorf("macro search failed: %w", err)
			}
			for _, text := range texts {
				fmt.Fprintln(cmd.OutOrStdout(), text)
			}
			return nil
		}),
	}
	cmd.Flags().StringVarP(&name, "name", "n", "", "Macro name")
	return cmd
}

func newMacroNamesCommand(options *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "macro-names",
		Aliases: []string{"mn"},
		Short:   "List saved macro names",
		Args:    cobra.NoArgs,
		RunE: withSession(options, func(cmd *cobra.Command, apiClient *client.Client, token string) error {
			names, err := apiClient.ListMacros(cmd.Context(), token)
			if err != nil {
				return fmt.Errorf("macro list failed: %w", err)
			}
			if len(names) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No macros found.")
				return nil
			}
			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		}),
	}
}

func newMacroSaveCommand(options *cliOptions) *cobra.Command {
	var name, commandIDs string
	cmd := &cobra.Command{
		Use:     "macro-save",
		Aliases: []string{"msv"},
		Short:   "Save a macro from command ids",
		Args:    cobra.NoArgs,
		RunE: withSession(options, func(cmd *cobra.Command, apiClient *client.Client, token string) error {
			if _, err := apiClient.SaveMacro(cmd.Context(), token, name, commandIDs); err != nil {
				return fmt.Errorf("macro save failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved macro %s\n", name)
			return nil
		}),
	}
	cmd.Flags().StringVarP(&name, "name", "n", "", "Macro name")
	cmd.Flags().StringVarP(&commandIDs, "commands", "c", "", "Command ids, comma or whitespace separated")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("commands")
	return cmd
}

type sessionRunner func(cmd *cobra.Command, apiClient *client.Client, token string) error

// withSession loads the stored token and builds a client before running fn.
func withSession(options *cliOptions, fn sessionRunner) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		token, err := options.tokenFile().Load()
		if err != nil {
			return err
		}
		apiClient, err := options.apiClient()
		if err != nil {
			return err
		}
		return fn(cmd, apiClient, token)
	}
}
