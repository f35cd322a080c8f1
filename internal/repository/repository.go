package repository

// Entities lists every persisted entity, in dependency order, for schema bootstrapping in tests.
func Entities() []any {
	return []any{
		&AccountEntity{},
		&TransactionEntity{},
		&OrderEntity{},
		&GroupEntity{},
		&AutoMessageEntity{},
		&PaymentSettingEntity{},
		&ConnectionEntity{},
	}
}
