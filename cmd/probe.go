package cmd

import (
	"fmt"
	"log"
	"sort"

	"Mx1Studio/config"
	"Mx1Studio/core/export"
	"Mx1Studio/core/media"

	"github.com/spf13/cobra"
)

var probeShowEncoders bool

var probeCmd = &cobra.Command{
	Use:   "probe [file]",
	Short: "检查媒体文件与主机编码能力",
	Long:  `用 ffprobe 检查媒体文件的时长、分辨率与编码，并报告可用的导出编码组合。`,
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()
		ffmpeg := media.NewFFmpegProcessor(cfg.FFmpegPath)

		if len(args) == 1 {
			info, err := ffmpeg.Probe(args[0])
			if err != nil {
				log.Fatalf("探测失败: %v", err)
			}
			fmt.Printf("文件: %s\n", args[0])
			fmt.Printf("时长: %.3f 秒\n", info.Duration)
			if info.HasVideo {
				fmt.Printf("视频: %s %s\n", info.VideoCodec, info.Resolution())
			}
			if info.HasAudio {
				fmt.Printf("音频: %s\n", info.AudioCodec)
			}
		}

		encoders, err := ffmpeg.ListEncoders()
		if err != nil {
			log.Fatalf("读取编码器失败: %v", err)
		}
		fmt.Printf("主机编码器数量: %d\n", len(encoders))

		if probeShowEncoders {
			names := make([]string, 0, len(encoders))
			for name := range encoders {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Println("  " + name)
			}
		}

		fmt.Println("导出能力:")
		for _, c := range export.Candidates() {
			ok := encoders[c.VideoCodec] && encoders[c.AudioCodec]
			mark := "✗"
			if ok {
				mark = "✓"
			}
			fmt.Printf("  %s %s (%s + %s)\n", mark, c.MimeType, c.VideoCodec, c.AudioCodec)
		}
	},
}

func init() {
	probeCmd.Flags().BoolVar(&probeShowEncoders, "encoders", false, "列出全部编码器")
	rootCmd.AddCommand(probeCmd)
}
