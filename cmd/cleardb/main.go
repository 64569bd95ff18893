package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"pagebuilder-go-server/bootstrap"
	"pagebuilder-go-server/domain/entity"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

func main() {
	// 命令行参数
	force := flag.Bool("force", false, "跳过确认提示，强制执行清库")
	truncate := flag.Bool("truncate", false, "使用 TRUNCATE（更快，会重置自增ID）")
	tables := flag.String("tables", "", "指定要清空的表，逗号分隔（例如: pages,users）；留空表示清空所有表")
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	// 加载环境变量
	env, err := bootstrap.LoadEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("❌ 环境变量加载失败")
	}
	if !env.DotEnvLoaded {
		log.Warn().Msg("⚠️ 未找到 .env 文件，使用系统环境变量")
	}

	// 连接数据库
	db, err := bootstrap.NewDatabase(env, log)
	if err != nil {
		log.Fatal().Err(err).Msg("❌ 数据库连接失败")
	}

	targetTables := getAllTables(db)
	if *tables != "" {
		targetTables = parseTableNames(*tables)
	}

	// 确认提示
	if !*force {
		fmt.Println("⚠️  警告：此操作将删除数据库中的所有数据！")
		fmt.Println("📊 受影响的表：")
		for _, t := range targetTables {
			fmt.Printf("   - %s\n", t)
		}

		fmt.Print("\n确认执行清库操作？(yes/no): ")
		reader := bufio.NewReader(os.Stdin)
		input, _ := reader.ReadString('\n')
		input = strings.TrimSpace(strings.ToLower(input))

		if input != "yes" && input != "y" {
			fmt.Println("❌ 操作已取消")
			return
		}
	}

	// 执行清库
	fmt.Println("\n🚀 开始清库...")

	for _, tableName := range targetTables {
		var stmt string
		if *truncate {
			stmt = truncateStatement(db.Dialector.Name(), tableName)
		} else {
			// DELETE 可以触发触发器，但较慢
			stmt = fmt.Sprintf("DELETE FROM %s", tableName)
		}

		if err := db.Exec(stmt).Error; err != nil {
			log.Error().Err(err).Str("table", tableName).Msg("❌ 清空表失败")
		} else {
			log.Info().Str("table", tableName).Msg("✅ 已清空表")
		}
	}

	fmt.Println("\n🎉 清库操作完成！")
}

// truncateStatement TRUNCATE 语法因数据库而异
// PostgreSQL 用 RESTART IDENTITY 重置自增、CASCADE 处理外键
func truncateStatement(driver, table string) string {
	if driver == "postgres" {
		return fmt.Sprintf("TRUNCATE TABLE %s RESTART IDENTITY CASCADE", table)
	}
	return fmt.Sprintf("TRUNCATE TABLE %s", table)
}

// getAllTables 返回所有需要清空的表名
// 注意：顺序很重要！快照表（page_versions）引用 pages，需先清空
func getAllTables(db *gorm.DB) []string {
	models := []any{&entity.PageVersion{}, &entity.Page{}, &entity.User{}}
	var tables []string
	for _, model := range models {
		if name := getTableName(db, model); name != "" {
			tables = append(tables, name)
		}
	}
	return tables
}

// getTableName 获取实体对应的表名（遵循 gorm 命名策略）
func getTableName(db *gorm.DB, model any) string {
	stmt := &gorm.Statement{DB: db}
	if err := stmt.Parse(model); err != nil {
		return ""
	}
	return stmt.Schema.Table
}

// parseTableNames 解析命令行指定的表名
func parseTableNames(input string) []string {
	parts := strings.Split(input, ",")
	var tables []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			tables = append(tables, p)
		}
	}
	return tables
}
