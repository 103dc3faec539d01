package main

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"

	"github.com/RecoveryAshes/PortalExtract/internal/config"
	"github.com/go-rod/rod/lib/launcher"
)

func main() {
	fmt.Println("==============================================")
	fmt.Println("  PortalExtract 环境验证")
	fmt.Println("==============================================")
	fmt.Println()

	allOK := true

	fmt.Printf("✅ Go版本: %s\n", runtime.Version())
	fmt.Printf("✅ 操作系统: %s/%s\n", runtime.GOOS, runtime.GOARCH)

	// 检查浏览器
	if bin := os.Getenv("DRIVER_PATH"); bin != "" {
		if _, err := os.Stat(bin); err == nil {
			fmt.Printf("✅ 浏览器 (DRIVER_PATH): %s\n", bin)
		} else {
			fmt.Printf("❌ DRIVER_PATH 指向的浏览器不存在: %s\n", bin)
			allOK = false
		}
	} else if path, ok := launcher.LookPath(); ok {
		fmt.Printf("✅ 浏览器: %s\n", path)
	} else if os.Getenv("CONTROL_URL") != "" {
		fmt.Printf("✅ 使用远程浏览器: %s\n", os.Getenv("CONTROL_URL"))
	} else {
		fmt.Println("⚠️  未找到本地Chromium - 首次运行时将自动下载")
	}

	// 检查门户凭据
	fmt.Println()
	fmt.Println("检查环境变量...")
	for _, env := range []string{"PORTAL_URL", "PORTAL_USER", "PORTAL_PASSWORD"} {
		if os.Getenv(env) != "" {
			fmt.Printf("✅ %s 已设置\n", env)
		} else {
			fmt.Printf("⚠️  %s 未设置 (也可在 configs/config.yaml 或命令行中提供)\n", env)
		}
	}

	// 检查选择器映射
	fmt.Println()
	fmt.Println("检查选择器映射...")
	if registry, err := config.LoadRegistry(config.DefaultSelectorsFile); err == nil {
		fmt.Printf("✅ %s: %d 个字段\n", config.DefaultSelectorsFile, len(registry.Fields()))
	} else {
		fmt.Printf("❌ %v\n", err)
		fmt.Println("   生成模板: portalextract init-selectors")
		allOK = false
	}

	// 检查项目依赖
	fmt.Println()
	fmt.Println("检查Go模块依赖...")
	if _, err := os.Stat("go.mod"); err == nil {
		fmt.Println("✅ go.mod文件存在")

		fmt.Println("正在下载依赖...")
		cmd := exec.Command("go", "mod", "download")
		if err := cmd.Run(); err != nil {
			fmt.Printf("❌ go mod download失败: %v\n", err)
			allOK = false
		} else {
			fmt.Println("✅ 依赖下载完成")
		}
	} else {
		fmt.Println("❌ go.mod文件不存在")
		allOK = false
	}

	// 检查项目结构
	fmt.Println()
	fmt.Println("检查项目结构...")
	requiredDirs := []string{
		"cmd/portalextract",
		"internal/automation",
		"internal/checkpoint",
		"internal/config",
		"internal/core",
		"internal/models",
		"internal/source",
		"internal/utils",
	}

	for _, dir := range requiredDirs {
		if _, err := os.Stat(dir); err == nil {
			fmt.Printf("✅ %s/\n", dir)
		} else {
			fmt.Printf("❌ %s/ 不存在\n", dir)
			allOK = false
		}
	}

	fmt.Println()
	fmt.Println("==============================================")
	if allOK {
		fmt.Println("✅ 环境验证通过!")
		fmt.Println()
		fmt.Println("下一步:")
		fmt.Println("  1. 运行 'go build ./cmd/portalextract' 构建项目")
		fmt.Println("  2. 运行 './portalextract probe' 检查门户")
		fmt.Println("  3. 运行 './portalextract run --help' 查看帮助")
		os.Exit(0)
	} else {
		fmt.Println("❌ 环境验证失败,请解决上述问题。")
		os.Exit(1)
	}
}
