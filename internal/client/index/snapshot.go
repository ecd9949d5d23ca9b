package index

import "sort"

// Snapshot copies the tracked items for readers outside the sync worker.
func (idx *Index) Snapshot() []ItemView {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	views := make([]ItemView, 0, len(idx.recipes)+len(idx.plugins)+len(idx.libraries))
	for path, item := range idx.recipes {
		views = append(views, ItemView{
			Kind:        KindRecipe,
			Instance:    item.Entry.Instance,
			ID:          item.Entry.ProjectKey + "." + item.Entry.RecipeName,
			Path:        path,
			ModuleRoot:  item.Store.ModuleRoot(),
			Version:     item.Entry.VersionNumber,
			ContentHash: item.Entry.ContentHash,
		})
	}
	for _, m := range []map[string]*SyncedFilesystem{idx.plugins, idx.libraries} {
		for path, item := range m {
			files := 0
			for _, f := range item.Entry.Files {
				if !f.IsFolder() {
					files++
				}
			}
			views = append(views, ItemView{
				Kind:       string(item.Kind),
				Instance:   item.Entry.Instance,
				ID:         item.Entry.ID,
				Path:       path,
				ModuleRoot: item.Store.ModuleRoot(),
				Files:      files,
			})
		}
	}

	sortViews(views)
	return views
}

func sortViews(views []ItemView) {
	sort.Slice(views, func(i, j int) bool {
		if views[i].Kind != views[j].Kind {
			return views[i].Kind > views[j].Kind
		}
		return views[i].Path < views[j].Path
	})
}
