package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ldapmigrate/ldapmigrate/internal/migrate"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Display the effective transformation rule set",
	Long: `Compile the built-in rules together with any transformation_rules from
the configuration and print the result in priority order. Useful for
checking what a migration run would apply before running it.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		rs := migrate.NewRuleSet()
		if err := rs.LoadRules(cfg, cfg.TransformationRules); err != nil {
			return err
		}

		type ruleView struct {
			Name        string `yaml:"name"`
			Priority    int    `yaml:"priority"`
			Action      string `yaml:"action"`
			Enabled     bool   `yaml:"enabled"`
			Description string `yaml:"description,omitempty"`
		}

		views := make([]ruleView, 0, len(rs.Rules()))
		for _, rule := range rs.Rules() {
			views = append(views, ruleView{
				Name:        rule.Name,
				Priority:    rule.Priority,
				Action:      rule.ActionName,
				Enabled:     rule.Enabled,
				Description: rule.Description,
			})
		}

		out, err := yaml.Marshal(views)
		if err != nil {
			return err
		}
		_, err = fmt.Fprint(cmd.OutOrStdout(), string(out))
		return err
	},
}

func init() {
	rootCmd.AddCommand(rulesCmd)
}
