package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jingkaihe/docgate/pkg/presenter"
	"github.com/jingkaihe/docgate/pkg/skills"
)

var skillCmd = &cobra.Command{
	Use:   "skill",
	Short: "Inspect document skills",
	Long:  `List, show and validate the skills that define document sections and thresholds.`,
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Help()
	},
}

var skillListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all available skills",
	Run: func(cmd *cobra.Command, _ []string) {
		listSkillsCmd(cmd.Context())
	},
}

var skillShowCmd = &cobra.Command{
	Use:   "show <skill-name>",
	Short: "Show the sections and thresholds of a skill",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		showSkillCmd(cmd.Context(), args[0])
	},
}

var skillValidateCmd = &cobra.Command{
	Use:   "validate <dir>",
	Short: "Validate a skill directory",
	Long: `Load a skill directory (SKILL.md with optional sections.yaml) and report every
problem with its definition.`,
	Args: cobra.ExactArgs(1),
	Run: func(_ *cobra.Command, args []string) {
		validateSkillCmd(args[0])
	},
}

func init() {
	skillCmd.AddCommand(skillListCmd)
	skillCmd.AddCommand(skillShowCmd)
	skillCmd.AddCommand(skillValidateCmd)
}

func listSkillsCmd(ctx context.Context) {
	discovery, err := skills.NewDiscoveryFromConfig(ctx)
	if err != nil {
		presenter.Error(err, "Failed to initialize skill discovery")
		os.Exit(1)
	}

	all, err := discovery.ListSkills()
	if err != nil {
		presenter.Error(err, "Failed to discover skills")
		os.Exit(1)
	}
	if len(all) == 0 {
		presenter.Info("No skills found")
		return
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tLANGUAGE\tSECTIONS\tSOURCE\tDESCRIPTION")
	fmt.Fprintln(tw, "----\t--------\t--------\t------\t-----------")
	for _, skill := range all {
		source := skill.Directory
		if skill.Builtin {
			source = "builtin"
		}
		description := skill.Description
		if len(description) > 60 {
			description = description[:57] + "..."
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", skill.Name, skill.Language, len(skill.Sections), source, description)
	}
	tw.Flush()
}

func showSkillCmd(ctx context.Context, name string) {
	skill, err := findSkill(ctx, name)
	if err != nil {
		presenter.Error(err, "Skill not found")
		os.Exit(1)
	}

	presenter.Section(skill.Name)
	presenter.Info(skill.Description)
	presenter.Info("")

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tTHRESHOLD\tWORDS\tREQUIRED FIELDS")
	for _, sec := range skill.Sections {
		words := "-"
		if sec.WordBudget.Min > 0 || sec.WordBudget.Max > 0 {
			words = fmt.Sprintf("%d-%d", sec.WordBudget.Min, sec.WordBudget.Max)
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", sec.Key(), sec.Name, sec.Threshold, words, orDash(strings.Join(sec.RequiredFields, ", ")))
	}
	tw.Flush()
}

func validateSkillCmd(dir string) {
	skill, err := skills.LoadSkillDir(dir)
	if err != nil {
		presenter.Error(err, "Failed to load skill")
		os.Exit(1)
	}
	if err := skill.Validate(); err != nil {
		presenter.Error(err, fmt.Sprintf("Skill %q is invalid", skill.Name))
		os.Exit(1)
	}
	presenter.Success(fmt.Sprintf("Skill %q is valid (%d sections)", skill.Name, len(skill.Sections)))
}
