package cli

import (
	"github.com/spf13/cobra"
)

var verbose bool

// rootCmd базовая команда; без подкоманды запускает сервер
var rootCmd = &cobra.Command{
	Use:   "inventory",
	Short: "IT asset inventory backend",
	Long: `Учет выдачи IT оборудования сотрудникам: журнал назначений,
вычисляемые статусы, ремонт журнала и ретрансляция изменений справочника.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd, args)
	},
}

// Execute запускает корневую команду
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Подробное логирование (DEBUG_MODE)")
}
