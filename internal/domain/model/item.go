package model

// Item — пользовательский ресурс. OwnerID хранит Keycloak sub владельца
// и назначается сервером при создании.
type Item struct {
	ID          int64
	Title       string
	Description *string
	OwnerID     string
}

// ItemCreate — данные для создания item. Владелец назначается сервером.
type ItemCreate struct {
	Title       string
	Description *string
}

// ItemUpdate — частичное обновление item.
// nil означает «поле не передано, не менять».
type ItemUpdate struct {
	Title       *string
	Description *string
}

// IsEmpty возвращает true, если ни одно поле не передано.
func (u *ItemUpdate) IsEmpty() bool {
	return u.Title == nil && u.Description == nil
}
