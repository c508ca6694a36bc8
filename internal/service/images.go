package service

import (
	"context"

	"GoodsCatalog/internal/form"
	"GoodsCatalog/internal/model"
)

// objects ключи объектов хранилища, затронутые сохранением набора изображений
type objects struct {
	// uploaded загружены и записаны в строки изображений
	uploaded []string
	// obsolete больше не упоминаются ни одной строкой
	obsolete []string
}

// saveImages применяет изменения набора к товару goodID.
// Ключи копятся в objs даже при ошибке, чтобы settle мог за ними убрать
func (s *CatalogService) saveImages(ctx context.Context, goodID int, ch form.Changes, objs *objects) error {
	for _, img := range ch.Delete {
		if err := s.repo.DeleteImage(ctx, goodID, img.ID); err != nil {
			return err
		}
		objs.obsolete = append(objs.obsolete, img.ObjectKey)
	}
	for _, u := range ch.Update {
		img := u.Image
		img.Position = u.Position
		old := ""
		if u.Upload != nil {
			key, url, err := s.upload(ctx, goodID, u.Upload)
			if err != nil {
				return err
			}
			old = img.ObjectKey
			img.ObjectKey, img.URL = key, url
		}
		if err := s.repo.UpdateImage(ctx, img); err != nil {
			if old != "" {
				s.discard(ctx, img.ObjectKey)
			}
			return err
		}
		if old != "" {
			objs.uploaded = append(objs.uploaded, img.ObjectKey)
			objs.obsolete = append(objs.obsolete, old)
		}
	}
	for _, n := range ch.Create {
		key, url, err := s.upload(ctx, goodID, n.Upload)
		if err != nil {
			return err
		}
		img := model.GoodImage{GoodID: goodID, ObjectKey: key, URL: url, Position: n.Position}
		if _, err := s.repo.AddImage(ctx, img); err != nil {
			s.discard(ctx, key)
			return err
		}
		objs.uploaded = append(objs.uploaded, key)
	}
	return nil
}

func (s *CatalogService) upload(ctx context.Context, goodID int, up *form.Upload) (string, string, error) {
	key := s.imageKey(goodID, up.Filename)
	url, err := s.store.Put(ctx, key, up.Data)
	if err != nil {
		return "", "", err
	}
	return key, url, nil
}

// settle убирает из хранилища объекты, на которые не осталось ссылок.
// Откат транзакции возвращает старые строки, поэтому тогда удаляются только новые загрузки
func (s *CatalogService) settle(ctx context.Context, objs *objects, err error) {
	if err != nil && s.atomic {
		for _, key := range objs.uploaded {
			s.discard(ctx, key)
		}
		return
	}
	for _, key := range objs.obsolete {
		s.discard(ctx, key)
	}
}

func (s *CatalogService) discard(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := s.store.Delete(ctx, key); err != nil {
		s.log.Warn("failed to delete image object", "key", key, "error", err)
	}
}
