package models

// OwnerRole роль владельца сущности
type OwnerRole string

const (
	RoleTenant   OwnerRole = "tenant"
	RoleLandlord OwnerRole = "landlord"
)

func (r OwnerRole) Valid() bool {
	return r == RoleTenant || r == RoleLandlord
}

// Owner аутентифицированный владелец, от имени которого выполняется мутирующая операция
type Owner struct {
	Role OwnerRole `json:"role"`
	ID   int64     `json:"id"`
}

func (o Owner) IsTenant(id int64) bool {
	return o.Role == RoleTenant && o.ID == id
}

func (o Owner) IsLandlord(id int64) bool {
	return o.Role == RoleLandlord && o.ID == id
}
