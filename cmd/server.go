package cmd

import (
	"Mx1Studio/server"

	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "启动Mx1Studio服务器",
	Long:  `启动Mx1Studio时间线编辑系统的HTTP服务器，提供项目、会话与导出API`,
	Run: func(cmd *cobra.Command, args []string) {
		server.Start()
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
