package service

// Actor: кто выполняет изменение. Передаётся явно в каждый изменяющий вызов
// и попадает в CreatedByID/ModifiedByID и журнал аудита.
type Actor struct {
	UserID    *uint
	UserName  string
	IP        string
	UserAgent string
	RequestID string
}

// System: действия без пользователя (сидирование, фоновые задачи).
var System = Actor{UserName: "system"}

func (a Actor) ID() uint {
	if a.UserID == nil {
		return 0
	}
	return *a.UserID
}

func UserActor(id uint, name string) Actor {
	return Actor{UserID: &id, UserName: name}
}
