package model

// AllModels 返回所有需要迁移的数据库模型对象
// 开发环境 (overlay-server 或 cmd/migrate -cmd auto) 使用 gorm AutoMigrate，生产环境走 migrations/ 下的 SQL
func AllModels() []interface{} {
	return []interface{}{
		&TransactionRecord{},
		&OutboxMessage{},
	}
}
