package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"Mx1Studio/config"
	"Mx1Studio/core/export"
	"Mx1Studio/core/media"
	"Mx1Studio/model"

	"github.com/spf13/cobra"
)

var (
	exportProjectPath string
	exportSourcePath  string
	exportAssetDir    string
	exportOutName     string
	exportContainer   string
	exportQuality     string
	exportMJPEG       bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "一次性导出项目",
	Long: `读取本地项目文件并渲染导出，不依赖数据库与对象存储。
音频素材通过 --assets 目录按 mediaFileId 前缀查找。`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()

		data, err := os.ReadFile(exportProjectPath)
		if err != nil {
			log.Fatalf("读取项目文件失败: %v", err)
		}
		pf, err := model.ParseProjectFile(data)
		if err != nil {
			log.Fatalf("解析项目文件失败: %v", err)
		}

		ffmpeg := media.NewFFmpegProcessor(cfg.FFmpegPath)

		width, height := 1280, 720
		if info, err := ffmpeg.Probe(exportSourcePath); err == nil && info.HasVideo {
			width, height = info.Width, info.Height
		}

		engine := export.NewEngine(export.NewFFmpegBackend(ffmpeg))
		result, err := engine.Export(context.Background(), export.Request{
			EditState:  pf.EditState,
			SourcePath: exportSourcePath,
			Resolve:    resolveFromDir(exportAssetDir),
			Options: export.Options{
				FileName:      exportOutName,
				Container:     exportContainer,
				Quality:       export.QualityFromString(exportQuality),
				OutputDir:     cfg.ExportDir,
				Width:         width,
				Height:        height,
				FontPath:      cfg.FontPath,
				AllowFallback: exportMJPEG,
			},
			OnProgress: func(percent float64, status string) {
				fmt.Printf("\r%5.1f%%  %s", percent, status)
			},
		})
		fmt.Println()
		if err != nil {
			log.Fatalf("导出失败: %v", err)
		}

		fmt.Printf("导出完成: %s (%s)\n", result.Path, result.MimeType)
	},
}

// resolveFromDir 在素材目录中按 mediaFileId 前缀查找文件
func resolveFromDir(dir string) func(string) (string, error) {
	return func(mediaFileID string) (string, error) {
		if dir == "" {
			return "", fmt.Errorf("no asset directory configured for %s", mediaFileID)
		}
		matches, err := filepath.Glob(filepath.Join(dir, mediaFileID+".*"))
		if err != nil {
			return "", err
		}
		if len(matches) == 0 {
			return "", fmt.Errorf("asset not found in %s: %s", dir, mediaFileID)
		}
		return matches[0], nil
	}
}

func init() {
	exportCmd.Flags().StringVar(&exportProjectPath, "project", "", "项目文件路径 (必填)")
	exportCmd.Flags().StringVar(&exportSourcePath, "source", "", "源视频文件路径 (必填)")
	exportCmd.Flags().StringVar(&exportAssetDir, "assets", "", "音频素材目录，按 mediaFileId 查找")
	exportCmd.Flags().StringVar(&exportOutName, "name", "myvideo", "输出文件名（不含扩展名）")
	exportCmd.Flags().StringVar(&exportContainer, "container", "mp4", "期望容器: mp4 或 webm")
	exportCmd.Flags().StringVar(&exportQuality, "quality", "medium", "质量档位: high/medium/low")
	exportCmd.Flags().BoolVar(&exportMJPEG, "mjpeg-fallback", false, "无可用编码器时降级为仅视频的 MJPEG 输出")
	exportCmd.MarkFlagRequired("project")
	exportCmd.MarkFlagRequired("source")
	rootCmd.AddCommand(exportCmd)
}
